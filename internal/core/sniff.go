package core

// sniff.go parses raw upload bytes into a Table, choosing between comma and
// pipe delimiters.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// missingTokens are cell values read as missing, in addition to blank and
// whitespace-only cells.
var missingTokens = map[string]struct{}{
	"NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"NULL": {}, "null": {}, "None": {}, "<NA>": {},
	"#N/A": {}, "#N/A N/A": {}, "#NA": {},
	"-1.#IND": {}, "-1.#QNAN": {}, "1.#IND": {}, "1.#QNAN": {},
}

// IsMissing reports whether a raw cell value denotes a missing value.
func IsMissing(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return true
	}
	_, ok := missingTokens[t]
	return ok
}

func cell(s string) Value {
	if IsMissing(s) {
		return Value{}
	}
	return Value{String: s, Valid: true}
}

// ParseTable parses data with ',' and, when the header read that way is a
// single field containing '|', parses the same bytes with '|' instead.
func ParseTable(data []byte) (*Table, error) {
	return parseDelimited(data, sniffDelimiter(data))
}

// sniffDelimiter decides the delimiter from the header record alone, so data
// rows containing commas do not fail the comma pass of a pipe file.
func sniffDelimiter(data []byte) rune {
	r := csv.NewReader(WrapInput(bytes.NewReader(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return ','
	}
	if len(header) == 1 && strings.Contains(header[0], "|") {
		return '|'
	}
	return ','
}

// parseDelimited reads header and rows with the given delimiter. Rows longer
// than the header are rejected; shorter rows are padded with missing cells.
func parseDelimited(data []byte, comma rune) (*Table, error) {
	r := csv.NewReader(WrapInput(bytes.NewReader(data)))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, newError(ErrParse, "Could not parse file as CSV", err)
	}

	t := &Table{Columns: make([]*Column, len(header))}
	for i, name := range header {
		t.Columns[i] = &Column{Name: name, Kind: KindText}
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newError(ErrParse, "Could not parse file as CSV", err)
		}
		if len(rec) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, newError(ErrParse,
				fmt.Sprintf("Row %d has %d fields, expected at most %d", line, len(rec), len(header)), nil)
		}
		for i, col := range t.Columns {
			if i < len(rec) {
				col.Values = append(col.Values, cell(rec[i]))
			} else {
				col.Values = append(col.Values, Value{})
			}
		}
	}

	inferKinds(t)
	return t, nil
}
