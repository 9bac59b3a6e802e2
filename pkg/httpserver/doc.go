// Package httpserver wraps http.Server with context-driven graceful
// shutdown and a healthcheck handler for liveness and readiness probes.
package httpserver
