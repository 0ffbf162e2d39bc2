package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes t as comma-separated text with a header row.
// Missing cells are written as empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for c, col := range t.Columns {
			row[c] = col.Values[i].String
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ToRecords converts up to limit rows of t into records keyed by column
// name. A negative limit converts every row.
func ToRecords(t *Table, limit int) []Record {
	n := t.NumRows()
	if limit >= 0 && limit < n {
		n = limit
	}
	records := make([]Record, n)
	for i := 0; i < n; i++ {
		rec := make(Record, t.NumCols())
		for _, c := range t.Columns {
			rec[c.Name] = typedValue(c.Kind, c.Values[i])
		}
		records[i] = rec
	}
	return records
}
