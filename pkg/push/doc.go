// Package push defines the platform-agnostic push delivery types and the
// Router that fans a notification out to platform-specific providers.
//
// Providers (see the apns and fcm subpackages) implement the Provider
// interface and translate a Payload into their wire format. Every provider
// response is parsed into Result/BatchResult at the boundary; raw provider
// payloads never propagate inward.
//
// The Router never fails by construction: an empty token list yields a zero
// result, and a platform without a configured provider yields an all-failed
// result with CodeNotConfigured instead of an error. Per-token failures are
// recorded in the batch result and never abort processing of other tokens.
//
// Failure codes form a closed taxonomy. Code.Permanent reports codes that
// invalidate the device token itself (these feed BatchResult.InvalidTokens
// and trigger registry cleanup); Code.Retryable reports transient conditions
// that make the whole job eligible for a queue-level retry.
package push
