// Package fcm implements the push.Provider contract for Firebase Cloud
// Messaging.
//
// The client operates in exactly one of two modes, fixed at construction and
// never mixed: v1 (OAuth2 service-account bearer token, scope restricted to
// messaging, one HTTP call per device token) or legacy (static server key in
// the Authorization header, also one call per token). FCM offers no batch
// send in the v1 API, so chunk members are delivered with bounded
// parallelism through async.SettleAll; a rejected token never aborts its
// siblings.
//
// Data map values are coerced to strings because the provider only accepts
// string-valued data. Android priority and an APNs-compatible override block
// are attached identically in both modes. A client constructed without
// credentials fails every token locally with push.CodeFCMNotConfigured and
// performs no network calls.
package fcm
