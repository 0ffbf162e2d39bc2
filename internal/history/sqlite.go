package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JonMunkholm/tidycsv/internal/core"
)

// sqliteTimeLayout is fixed-width so lexical order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS upload_attempts (
	id                TEXT PRIMARY KEY,
	username          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	stored_filename   TEXT NOT NULL DEFAULT '',
	outcome           TEXT NOT NULL,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_attempts_user_created
	ON upload_attempts (username, created_at DESC, id DESC);
`

// SQLiteRecorder records attempts in an embedded SQLite database.
// A single connection serializes every write.
type SQLiteRecorder struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteRecorder)(nil)

// OpenSQLite opens (creating if needed) the database at path.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteRecorder, error) {
	if path == "" {
		path = "tidycsv.db"
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteRecorder{db: db, now: time.Now}, nil
}

// Record appends one attempt with a server-assigned timestamp.
func (r *SQLiteRecorder) Record(ctx context.Context, p core.AttemptParams) (*core.UploadAttempt, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	created := r.now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO upload_attempts (id, username, original_filename, stored_filename, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Username, p.OriginalFilename, p.StoredFilename, string(p.Outcome),
		created.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert upload attempt: %w", err)
	}

	return &core.UploadAttempt{
		ID:               id,
		Username:         p.Username,
		OriginalFilename: p.OriginalFilename,
		StoredFilename:   p.StoredFilename,
		Outcome:          p.Outcome,
		CreatedAt:        created,
	}, nil
}

// History returns username's attempts, newest first.
func (r *SQLiteRecorder) History(ctx context.Context, username string) ([]core.UploadAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, original_filename, stored_filename, outcome, created_at
		 FROM upload_attempts
		 WHERE username = ?
		 ORDER BY created_at DESC, id DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("query upload history: %w", err)
	}
	defer rows.Close()

	attempts := []core.UploadAttempt{}
	for rows.Next() {
		var (
			a       core.UploadAttempt
			outcome string
			created string
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.OriginalFilename, &a.StoredFilename, &outcome, &created); err != nil {
			return nil, fmt.Errorf("scan upload attempt: %w", err)
		}
		a.Outcome = core.Outcome(outcome)
		a.CreatedAt, err = time.Parse(sqliteTimeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload history: %w", err)
	}
	return attempts, nil
}

// Ping verifies the database is reachable.
func (r *SQLiteRecorder) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database handle.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
