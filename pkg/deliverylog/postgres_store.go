package deliverylog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists delivery records in the delivery_logs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, record Record) error {
	if record.TotalDevices < 0 || record.DeliveredTo < 0 || record.FailedCount < 0 {
		return ErrInvalidRecord
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	var metadata []byte
	if len(record.Metadata) > 0 {
		raw, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("deliverylog: marshal metadata: %w", err)
		}
		metadata = raw
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_logs (
			id, type, department_id, total_devices, delivered_to,
			failed_count, invalid_tokens, duration_ms, success, error,
			metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.Type, record.DepartmentID, record.TotalDevices,
		record.DeliveredTo, record.FailedCount, record.InvalidTokens,
		record.DurationMs, record.Success, record.Error, metadata,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("deliverylog: append: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT id, type, department_id, total_devices, delivered_to,
		       failed_count, invalid_tokens, duration_ms, success, error,
		       metadata, created_at
		FROM delivery_logs
		WHERE 1=1`
	var args []any

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		query += fmt.Sprintf(" AND success = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deliverylog: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var metadata []byte
		if err := rows.Scan(
			&r.ID, &r.Type, &r.DepartmentID, &r.TotalDevices, &r.DeliveredTo,
			&r.FailedCount, &r.InvalidTokens, &r.DurationMs, &r.Success,
			&r.Error, &metadata, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("deliverylog: scan: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("deliverylog: unmarshal metadata: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deliverylog: list: %w", err)
	}
	return records, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE success),
		       count(*) FILTER (WHERE NOT success),
		       coalesce(sum(delivered_to), 0),
		       coalesce(sum(failed_count), 0),
		       coalesce(sum(invalid_tokens), 0)
		FROM delivery_logs
		WHERE created_at >= $1`, since,
	).Scan(
		&stats.TotalJobs, &stats.SuccessfulJobs, &stats.FailedJobs,
		&stats.DevicesReached, &stats.DevicesFailed, &stats.TokensPurged,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("deliverylog: stats: %w", err)
	}
	return stats, nil
}
