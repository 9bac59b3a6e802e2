package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/deliverylog"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// queueStats is implemented by the queue storage backends.
type queueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// opsRouter exposes the operational surface: health probes and delivery
// statistics. Producer-facing APIs live in other services; this binary
// only consumes the queue.
func opsRouter(log *slog.Logger, logStore deliverylog.Store, qs queueStats, probes ...func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", httpserver.HealthCheckHandler(log, probes...))

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		since := time.Now().Add(-24 * time.Hour)
		if raw := req.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "invalid since parameter, want RFC3339", http.StatusBadRequest)
				return
			}
			since = parsed
		}

		delivery, err := logStore.Stats(ctx, since)
		if err != nil {
			log.ErrorContext(ctx, "failed to read delivery stats", slog.String("error", err.Error()))
			http.Error(w, "failed to read delivery stats", http.StatusInternalServerError)
			return
		}
		queues, err := qs.Stats(ctx)
		if err != nil {
			log.ErrorContext(ctx, "failed to read queue stats", slog.String("error", err.Error()))
			http.Error(w, "failed to read queue stats", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"since":    since,
			"delivery": delivery,
			"queues":   queues,
		})
	})

	return r
}
