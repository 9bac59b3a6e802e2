package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// DefaultMaxAttempts bounds how many times a job runs before it is
// marked failed.
const DefaultMaxAttempts int8 = 3

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority orders claims within a queue. Lower values are more urgent:
// a PriorityHigh job enqueued after a backlog of PriorityNormal jobs is
// still claimed first.
type Priority int8

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3

	PriorityDefault = PriorityNormal
)

// Valid checks if the priority is within the accepted range.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// Job is one unit of work in the queue.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Priority    Priority        `json:"priority"`
	Attempts    int8            `json:"attempts"`
	MaxAttempts int8            `json:"max_attempts"`
	VisibleAt   time.Time       `json:"visible_at"`
	LockedUntil *time.Time      `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID      `json:"locked_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Stats is a point-in-time snapshot of queue depths.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
