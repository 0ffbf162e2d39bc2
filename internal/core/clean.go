package core

// clean.go implements the cleaning pipeline. Each step consumes the whole
// table produced by the previous step; steps never mutate their input.

import (
	"context"
	"log/slog"
	"strings"
)

// Step is one named stage of the cleaning pipeline.
type Step struct {
	Name string
	Run  func(*Table) *Table
}

// Pipeline is the fixed, ordered set of cleaning steps.
var Pipeline = []Step{
	{"drop_duplicate_rows", dropDuplicateRows},
	{"drop_incomplete_rows", dropIncompleteRows},
	{"drop_empty_columns", dropEmptyColumns},
	{"normalize_headers", normalizeHeaders},
	{"trim_text", trimText},
	{"coerce_dates", coerceDates},
	{"fill_numeric", fillNumeric},
	{"drop_duplicate_rows_final", dropDuplicateRows},
}

// Clean runs the pipeline over a copy of t. The input is not modified.
func Clean(ctx context.Context, t *Table) *Table {
	out := t.Clone()
	for _, step := range Pipeline {
		before := out.NumRows()
		out = step.Run(out)
		slog.DebugContext(ctx, "cleaning step",
			"step", step.Name,
			"rows_before", before,
			"rows_after", out.NumRows(),
			"columns", out.NumCols(),
		)
	}
	return out
}

// rowKey builds a comparable key for a row. Missing cells are distinct from
// any present value, including the empty string.
func rowKey(t *Table, i int) string {
	var b strings.Builder
	for _, c := range t.Columns {
		v := c.Values[i]
		if !v.Valid {
			b.WriteString("\x00")
		} else {
			b.WriteString("\x01")
			b.WriteString(v.String)
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

func dropDuplicateRows(t *Table) *Table {
	n := t.NumRows()
	seen := make(map[string]struct{}, n)
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		k := rowKey(t, i)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == n {
		return t
	}
	return t.selectRows(keep)
}

func dropIncompleteRows(t *Table) *Table {
	n := t.NumRows()
	keep := make([]int, 0, n)
rows:
	for i := 0; i < n; i++ {
		for _, c := range t.Columns {
			if !c.Values[i].Valid {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	if len(keep) == n {
		return t
	}
	return t.selectRows(keep)
}

// dropEmptyColumns removes columns with no valid value. With zero rows every
// column qualifies.
func dropEmptyColumns(t *Table) *Table {
	out := &Table{Columns: make([]*Column, 0, len(t.Columns))}
	for _, c := range t.Columns {
		for _, v := range c.Values {
			if v.Valid {
				out.Columns = append(out.Columns, c)
				break
			}
		}
	}
	return out
}

func normalizeHeaders(t *Table) *Table {
	names := NormalizeHeaders(t.Header())
	for i, c := range t.Columns {
		c.Name = names[i]
	}
	return t
}

func trimText(t *Table) *Table {
	for _, c := range t.Columns {
		if c.Kind != KindText {
			continue
		}
		for i, v := range c.Values {
			if v.Valid {
				c.Values[i].String = strings.TrimSpace(v.String)
			}
		}
	}
	return t
}

func coerceDates(t *Table) *Table {
	for i, c := range t.Columns {
		if isTemporalName(c.Name) {
			t.Columns[i] = tryCoerceDate(c)
		}
	}
	return t
}

func fillNumeric(t *Table) *Table {
	for i, c := range t.Columns {
		t.Columns[i] = tryCoerceNumeric(c)
	}
	return t
}
