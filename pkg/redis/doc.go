// Package redis provides Redis connectivity for the service: a connection
// helper that retries startup failures and a healthcheck closure for the
// ops endpoints. The queue storage builds directly on the returned client.
package redis
