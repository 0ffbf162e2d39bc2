// Package core provides the cleaning pipeline and upload bookkeeping.
// This package has no HTTP dependencies and can be used by any frontend.
package core

import (
	"context"
	"io"
	"time"
)

// Kind is the inferred logical type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "text"
	}
}

// Numeric reports whether the kind holds numbers.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// Value is a single cell. Valid is false for missing values.
type Value struct {
	String string
	Valid  bool
}

// Column is a named, typed sequence of cells.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// Table is an ordered set of equally long columns.
type Table struct {
	Columns []*Column
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// NumCols returns the number of columns in the table.
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Header returns the column names in order.
func (t *Table) Header() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Clone returns a deep copy so pipeline stages never share cell slices.
func (t *Table) Clone() *Table {
	out := &Table{Columns: make([]*Column, len(t.Columns))}
	for i, c := range t.Columns {
		vals := make([]Value, len(c.Values))
		copy(vals, c.Values)
		out.Columns[i] = &Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}
	return out
}

// selectRows returns a new table containing only the given row indices.
func (t *Table) selectRows(keep []int) *Table {
	out := &Table{Columns: make([]*Column, len(t.Columns))}
	for i, c := range t.Columns {
		vals := make([]Value, len(keep))
		for j, r := range keep {
			vals[j] = c.Values[r]
		}
		out.Columns[i] = &Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}
	return out
}

// Record is one row keyed by column name, with values typed by column kind.
type Record map[string]any

// Outcome is the recorded result of an upload attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeParseError       Outcome = "parse_error"
	OutcomeEmpty            Outcome = "empty"
	OutcomeInvalidStructure Outcome = "invalid_structure"
	OutcomeNoHeaders        Outcome = "no_headers"
	OutcomeServerError      Outcome = "server_error"
)

// Identity is the authenticated caller of a core operation.
type Identity struct {
	Username string
}

// UploadAttempt is the immutable record of one upload request.
type UploadAttempt struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename,omitempty"`
	Outcome          Outcome   `json:"outcome"`
	CreatedAt        time.Time `json:"created_at"`
}

// AttemptParams contains the caller-supplied fields of an UploadAttempt.
// ID and CreatedAt are assigned by the Recorder.
type AttemptParams struct {
	Username         string
	OriginalFilename string
	StoredFilename   string
	Outcome          Outcome
}

// Recorder appends upload attempts to durable storage.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, params AttemptParams) (*UploadAttempt, error)
	History(ctx context.Context, username string) ([]UploadAttempt, error)
}

// ArtifactInfo describes a persisted file.
type ArtifactInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ArtifactStore persists raw uploads and cleaned tables.
type ArtifactStore interface {
	SaveRaw(ctx context.Context, filename string, data []byte) (string, error)
	SaveCleaned(ctx context.Context, storedFilename string, t *Table) (string, error)
	Preview(ctx context.Context, cleanedFilename string, n int) ([]Record, error)
	Open(ctx context.Context, cleanedFilename string) (io.ReadSeekCloser, ArtifactInfo, error)
	Delete(ctx context.Context, cleanedFilename string) error
	ListCleaned(ctx context.Context) ([]ArtifactInfo, error)
}

// UploadResult is returned for a successful upload.
type UploadResult struct {
	AttemptID       string
	StoredFilename  string
	CleanedFilename string
	Table           *Table
	Records         []Record
	Duration        time.Duration
}
