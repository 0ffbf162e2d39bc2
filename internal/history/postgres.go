package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tidycsv/internal/core"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS upload_attempts (
	id                UUID PRIMARY KEY,
	username          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	stored_filename   TEXT NOT NULL DEFAULT '',
	outcome           TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS upload_attempts_user_created
	ON upload_attempts (username, created_at DESC, id DESC);
`

// PostgresRecorder records attempts in PostgreSQL through a pgx pool.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresRecorder)(nil)

// OpenPostgres connects a pool using opts and ensures the schema exists.
func OpenPostgres(ctx context.Context, opts Options) (*PostgresRecorder, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(opts.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

// Record appends one attempt. The timestamp is assigned by the database.
func (r *PostgresRecorder) Record(ctx context.Context, p core.AttemptParams) (*core.UploadAttempt, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}

	var created time.Time
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO upload_attempts (id, username, original_filename, stored_filename, outcome)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			id, p.Username, p.OriginalFilename, p.StoredFilename, string(p.Outcome),
		).Scan(&created)
	})
	if err != nil {
		return nil, fmt.Errorf("insert upload attempt: %w", err)
	}

	return &core.UploadAttempt{
		ID:               id,
		Username:         p.Username,
		OriginalFilename: p.OriginalFilename,
		StoredFilename:   p.StoredFilename,
		Outcome:          p.Outcome,
		CreatedAt:        created.UTC(),
	}, nil
}

type attemptRow struct {
	ID               string    `db:"id"`
	Username         string    `db:"username"`
	OriginalFilename string    `db:"original_filename"`
	StoredFilename   string    `db:"stored_filename"`
	Outcome          string    `db:"outcome"`
	CreatedAt        time.Time `db:"created_at"`
}

// History returns username's attempts, newest first.
func (r *PostgresRecorder) History(ctx context.Context, username string) ([]core.UploadAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text AS id, username, original_filename, stored_filename, outcome, created_at
		 FROM upload_attempts
		 WHERE username = $1
		 ORDER BY created_at DESC, id DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("query upload history: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[attemptRow])
	if err != nil {
		return nil, fmt.Errorf("collect upload history: %w", err)
	}

	attempts := make([]core.UploadAttempt, len(collected))
	for i, row := range collected {
		attempts[i] = core.UploadAttempt{
			ID:               row.ID,
			Username:         row.Username,
			OriginalFilename: row.OriginalFilename,
			StoredFilename:   row.StoredFilename,
			Outcome:          core.Outcome(row.Outcome),
			CreatedAt:        row.CreatedAt.UTC(),
		}
	}
	return attempts, nil
}

// Ping verifies the pool can reach the database.
func (r *PostgresRecorder) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes every pooled connection.
func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
