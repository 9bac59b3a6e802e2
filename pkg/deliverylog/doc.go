// Package deliverylog records the outcome of every processed notification
// job as an append-only audit trail.
//
// Exactly one record is written per job attempt outcome: a successful
// dispatch produces one record with the aggregate delivery counters, and a
// failed attempt produces one record with Success=false and the error
// message. Records are never updated after the fact.
//
// Two Store implementations are provided: MemoryStore for tests and
// single-process setups, and PostgresStore backed by pgx for production.
package deliverylog
