package device

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry persists devices in PostgreSQL via a pgx pool.
// Concurrency control is delegated to the database: Upsert relies on
// row-level ON CONFLICT semantics, so no in-process locking is needed.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry wraps an existing connection pool. The schema is
// managed by the module's goose migrations (migrations/).
func NewPostgresRegistry(pool *pgxpool.Pool) (*PostgresRegistry, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	return &PostgresRegistry{pool: pool}, nil
}

// Upsert implements Registry.
func (r *PostgresRegistry) Upsert(ctx context.Context, userID, token string, platform Platform, departmentID *string) error {
	if userID == "" || token == "" {
		return ErrInvalidRegistration
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (user_id, token, platform, department_id, last_active_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, token) DO UPDATE
		SET platform = EXCLUDED.platform,
		    department_id = EXCLUDED.department_id,
		    last_active_at = now()`,
		userID, token, string(platform), departmentID)
	return err
}

// FindByUsers implements Registry.
func (r *PostgresRegistry) FindByUsers(ctx context.Context, userIDs []string) ([]Device, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `
		SELECT DISTINCT ON (token) user_id, token, platform, department_id, last_active_at
		FROM devices
		WHERE user_id = ANY($1)
		ORDER BY token, last_active_at DESC`, userIDs)
}

// FindByDepartments implements Registry.
func (r *PostgresRegistry) FindByDepartments(ctx context.Context, departmentIDs []string) ([]Device, error) {
	if len(departmentIDs) == 0 {
		return nil, nil
	}
	return r.query(ctx, `
		SELECT DISTINCT ON (token) user_id, token, platform, department_id, last_active_at
		FROM devices
		WHERE department_id = ANY($1)
		ORDER BY token, last_active_at DESC`, departmentIDs)
}

// FindAll implements Registry.
func (r *PostgresRegistry) FindAll(ctx context.Context) ([]Device, error) {
	return r.query(ctx, `
		SELECT DISTINCT ON (token) user_id, token, platform, department_id, last_active_at
		FROM devices
		ORDER BY token, last_active_at DESC`)
}

// DeleteByTokens implements Registry.
func (r *PostgresRegistry) DeleteByTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE token = ANY($1)`, tokens)
	return err
}

// DeleteByDepartment implements Registry.
func (r *PostgresRegistry) DeleteByDepartment(ctx context.Context, departmentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE department_id = $1`, departmentID)
	return err
}

func (r *PostgresRegistry) query(ctx context.Context, sql string, args ...any) ([]Device, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var (
			d        Device
			platform string
		)
		if err := rows.Scan(&d.UserID, &d.Token, &platform, &d.DepartmentID, &d.LastActiveAt); err != nil {
			return nil, err
		}
		d.Platform = Platform(platform)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
