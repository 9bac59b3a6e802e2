// Package logger builds configured slog.Logger instances shared across the
// service: JSON output for production aggregation, text for development,
// with static service attributes attached to every record.
package logger
