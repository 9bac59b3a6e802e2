// Package pg provides PostgreSQL connectivity for the service: a pgxpool
// connection helper with startup retries, goose-based schema migrations
// from an embedded filesystem, and a healthcheck closure for the ops
// endpoints.
package pg
