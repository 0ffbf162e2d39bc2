package core

import (
	"path/filepath"
	"strings"
)

// ValidateFilename rejects uploads whose name lacks a .csv extension.
func ValidateFilename(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return newError(ErrNotCSV, "File type not allowed. Please upload a .csv file", nil)
	}
	return nil
}

// ValidateStructure checks, in order: zero rows, fewer than two columns,
// no usable header. The first failing check is returned.
func ValidateStructure(t *Table) error {
	if t.NumRows() == 0 {
		return newError(ErrEmptyInput, "The uploaded CSV file is empty", nil)
	}
	if t.NumCols() < 2 {
		return newError(ErrInvalidStructure,
			"Invalid CSV structure. Please ensure the file has at least two columns", nil)
	}
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) != "" {
			return nil
		}
	}
	return newError(ErrMissingHeaders, "The CSV file has no headers", nil)
}
