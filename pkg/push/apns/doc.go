// Package apns implements the push.Provider contract for the Apple Push
// Notification service.
//
// Authentication uses a provider token: an ES256-signed JWT built from the
// team id, key id and the .p8 private key, cached and re-signed on a fixed
// interval (Apple accepts tokens between 20 and 60 minutes old). Requests go
// over HTTP/2 to the production or sandbox host, one request per device
// token, issued chunk by chunk with at most 500 tokens per chunk.
//
// Provider status codes are mapped onto the closed push.Code taxonomy; only
// 410 (unregistered device token) marks a token for registry cleanup. A
// client constructed without credentials is still usable: every send settles
// as all-failed with push.CodeAPNSNotConfigured and performs no network
// calls.
package apns
