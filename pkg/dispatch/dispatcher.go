package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/deliverylog"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// TokenCleaner removes permanently invalid tokens from the device
// registry. Implemented by device.Registry.
type TokenCleaner interface {
	DeleteByTokens(ctx context.Context, tokens []string) error
}

// Dispatcher processes queued notification jobs.
type Dispatcher struct {
	router   *push.Router
	registry TokenCleaner
	log      deliverylog.Store
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(router *push.Router, registry TokenCleaner, log deliverylog.Store, opts ...DispatcherOption) (*Dispatcher, error) {
	if router == nil || registry == nil || log == nil {
		return nil, ErrNilDependency
	}

	d := &Dispatcher{
		router:   router,
		registry: registry,
		log:      log,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Register binds the dispatch handler to the worker. The worker must be
// configured with QueueNames() to actually pull dispatch jobs.
func (d *Dispatcher) Register(worker *queue.Worker) {
	worker.RegisterHandler(queue.NewNamedJobHandler(JobName, func(ctx context.Context, job Job) error {
		return d.Process(ctx, job)
	}))
}

// Process delivers one job and records its outcome. Exactly one delivery
// record is appended per attempt: a success record after delivery, or a
// failure record before the error is returned for the queue to retry.
func (d *Dispatcher) Process(ctx context.Context, job Job) error {
	start := time.Now()

	if err := job.Validate(); err != nil {
		d.appendRecord(ctx, job, push.BatchResult{FailedCount: len(job.Tokens), TotalDevices: len(job.Tokens)}, start, err)
		return err
	}

	res, err := d.router.SendToDevices(ctx, job.devices(), job.Payload)
	if err != nil {
		d.appendRecord(ctx, job, push.AllFailed(job.Tokens, push.CodeSendError, err.Error()), start, err)
		return err
	}

	d.cleanupInvalidTokens(ctx, res.InvalidTokens)

	if err := d.retryableOutcome(res); err != nil {
		d.appendRecord(ctx, job, res, start, err)
		return err
	}

	d.appendRecord(ctx, job, res, start, nil)

	d.logger.InfoContext(ctx, "job dispatched",
		slog.String("type", string(job.Type)),
		slog.Int("total", res.TotalDevices),
		slog.Int("delivered", res.DeliveredTo),
		slog.Int("failed", res.FailedCount),
		slog.Int("invalid_tokens", len(res.InvalidTokens)))

	return nil
}

// cleanupInvalidTokens purges tokens the providers rejected permanently.
// Cleanup failure never fails the job: the tokens resurface on the next
// send and are purged then.
func (d *Dispatcher) cleanupInvalidTokens(ctx context.Context, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if err := d.registry.DeleteByTokens(ctx, tokens); err != nil {
		d.logger.ErrorContext(ctx, "failed to purge invalid tokens",
			slog.Int("tokens", len(tokens)),
			slog.String("error", err.Error()))
		return
	}
	d.logger.InfoContext(ctx, "purged invalid tokens", slog.Int("tokens", len(tokens)))
}

// retryableOutcome decides whether the attempt should be re-run. Only a
// complete failure with at least one transient code qualifies; partial
// delivery must not be retried, or devices would receive duplicates.
func (d *Dispatcher) retryableOutcome(res push.BatchResult) error {
	if res.TotalDevices == 0 || res.DeliveredTo > 0 {
		return nil
	}
	for _, r := range res.Results {
		if r.Error != nil && r.Error.Code.Retryable() {
			return ErrAllDeliveriesFailed
		}
	}
	return nil
}

func (d *Dispatcher) appendRecord(ctx context.Context, job Job, res push.BatchResult, start time.Time, execErr error) {
	record := deliverylog.Record{
		Type:          string(job.Type),
		DepartmentID:  job.DepartmentID,
		TotalDevices:  res.TotalDevices,
		DeliveredTo:   res.DeliveredTo,
		FailedCount:   res.FailedCount,
		InvalidTokens: len(res.InvalidTokens),
		DurationMs:    time.Since(start).Milliseconds(),
		// A record counts as successful only when every device was reached.
		// Partial delivery completes the job but is not a success.
		Success: execErr == nil && res.FailedCount == 0,
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	if len(job.Metadata) > 0 {
		record.Metadata = make(map[string]any, len(job.Metadata))
		for k, v := range job.Metadata {
			record.Metadata[k] = v
		}
	}

	if err := d.log.Append(ctx, record); err != nil {
		d.logger.ErrorContext(ctx, "failed to append delivery record",
			slog.String("type", string(job.Type)),
			slog.String("error", err.Error()))
	}
}
