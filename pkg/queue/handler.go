package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type (
	// Handler processes jobs of one name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// JobHandlerFunc is a typed handler callback. The payload is decoded
	// from the job's JSON before the callback runs.
	JobHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewJobHandler wraps a typed callback as a Handler. The job name defaults
// to the payload's qualified struct name, matching what Enqueuer derives
// when no explicit name is given.
func NewJobHandler[T any](handler JobHandlerFunc[T]) Handler {
	var payload T
	return &jobHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewNamedJobHandler wraps a typed callback under an explicit job name.
func NewNamedJobHandler[T any](name string, handler JobHandlerFunc[T]) Handler {
	return &jobHandler[T]{
		name:    name,
		handler: handler,
	}
}

type jobHandler[T any] struct {
	name    string
	handler JobHandlerFunc[T]
}

func (h *jobHandler[T]) Name() string {
	return h.name
}

func (h *jobHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.handler(ctx, t)
}

func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
