package deliverylog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one delivery outcome. InvalidTokens is a count, not the token
// list; the tokens themselves are purged from the registry and not retained.
type Record struct {
	ID            uuid.UUID      `json:"id"`
	Type          string         `json:"type"`
	DepartmentID  *string        `json:"department_id,omitempty"`
	TotalDevices  int            `json:"total_devices"`
	DeliveredTo   int            `json:"delivered_to"`
	FailedCount   int            `json:"failed_count"`
	InvalidTokens int            `json:"invalid_tokens"`
	DurationMs    int64          `json:"duration_ms"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Type    string
	Success *bool
	Since   time.Time
	Limit   int
}

// Stats aggregates delivery outcomes over a time window.
type Stats struct {
	TotalJobs      int `json:"total_jobs"`
	SuccessfulJobs int `json:"successful_jobs"`
	FailedJobs     int `json:"failed_jobs"`
	DevicesReached int `json:"devices_reached"`
	DevicesFailed  int `json:"devices_failed"`
	TokensPurged   int `json:"tokens_purged"`
}

// Store persists delivery records.
type Store interface {
	// Append writes one record. A zero ID and CreatedAt are filled in.
	Append(ctx context.Context, record Record) error

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Stats aggregates records created at or after since.
	Stats(ctx context.Context, since time.Time) (Stats, error)
}
