package core

// coerce.go implements best-effort column coercions. Each function returns
// the column to keep: a converted copy on success, the input unchanged
// otherwise. Coercion never fails the pipeline.

import (
	"strings"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// assumed to be in the previous century.
var TwoDigitYearPivot = 20

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04", "2006-01-02T15:04",
		"1/2/2006 15:04:05", "1/2/2006 15:04",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"20060102",
	}
)

// ParseTimestamp parses s with the supported layouts.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// isTemporalName reports whether a normalized column name suggests dates.
func isTemporalName(name string) bool {
	return strings.Contains(name, "date") || strings.Contains(name, "time")
}

// tryCoerceDate parses every valid value as a timestamp. If any value fails,
// c is returned unchanged. Values are rewritten as YYYY-MM-DD when all are
// at midnight, otherwise YYYY-MM-DD HH:MM:SS.
func tryCoerceDate(c *Column) *Column {
	if c.Kind == KindTime {
		return c
	}

	parsed := make([]time.Time, len(c.Values))
	dateOnly := true
	for i, v := range c.Values {
		if !v.Valid {
			continue
		}
		t, ok := ParseTimestamp(v.String)
		if !ok {
			return c
		}
		parsed[i] = t
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
			dateOnly = false
		}
	}

	layout := dateTimeLayout
	if dateOnly {
		layout = dateLayout
	}

	out := &Column{Name: c.Name, Kind: KindTime, Values: make([]Value, len(c.Values))}
	for i, v := range c.Values {
		if !v.Valid {
			continue
		}
		out.Values[i] = Value{String: parsed[i].Format(layout), Valid: true}
	}
	return out
}

// tryCoerceNumeric fills missing cells of a numeric column with "0" and
// trims the rest. Non-numeric columns are returned unchanged.
func tryCoerceNumeric(c *Column) *Column {
	if !c.Kind.Numeric() {
		return c
	}
	out := &Column{Name: c.Name, Kind: c.Kind, Values: make([]Value, len(c.Values))}
	for i, v := range c.Values {
		if !v.Valid {
			out.Values[i] = Value{String: "0", Valid: true}
			continue
		}
		out.Values[i] = Value{String: strings.TrimSpace(v.String), Valid: true}
	}
	return out
}
