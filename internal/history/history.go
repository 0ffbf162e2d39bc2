// Package history stores the append-only log of upload attempts.
//
// Two backends share one relational schema: an embedded SQLite database
// (the default) and PostgreSQL. Both implement core.Recorder. Rows are
// only ever inserted; nothing in this package updates or deletes them.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tidycsv/internal/core"
)

// Store is a Recorder with lifecycle and health methods.
type Store interface {
	core.Recorder
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes a backend.
type Options struct {
	Driver string

	// SQLite
	Path        string
	BusyTimeout time.Duration

	// PostgreSQL
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the configured backend and ensures the schema exists.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.Path, opts.BusyTimeout)
	case DriverPostgres:
		return OpenPostgres(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown history driver %q", opts.Driver)
	}
}

// newID returns a time-ordered identifier, so id order matches insert order
// within the same timestamp.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate attempt id: %w", err)
	}
	return id.String(), nil
}

func validateParams(p core.AttemptParams) error {
	if p.Username == "" {
		return fmt.Errorf("record attempt: username is required")
	}
	if p.Outcome == "" {
		return fmt.Errorf("record attempt: outcome is required")
	}
	return nil
}
