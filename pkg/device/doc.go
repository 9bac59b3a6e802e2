// Package device maintains the registry of push-capable devices.
//
// A device is identified by the (user id, token) pair. Registration is an
// upsert: repeated registrations of the same pair refresh the platform,
// department and last-seen timestamp instead of creating duplicates. Tokens
// reported as permanently invalid by a push provider are removed through
// DeleteByTokens; removal is eventually consistent with provider feedback,
// so a stale token may be attempted once more before it disappears.
//
// Two Registry implementations are provided: MemoryRegistry for tests and
// local development, and PostgresRegistry backed by a pgx connection pool.
package device
