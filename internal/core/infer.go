package core

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	intRegex   = regexp.MustCompile(`^[+-]?\d+$`)
	floatRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

func inferKinds(t *Table) {
	for _, c := range t.Columns {
		c.Kind = inferKind(c.Values)
	}
}

// inferKind picks the narrowest kind that accepts every valid value.
// A column with no valid values is text.
func inferKind(values []Value) Kind {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, v := range values {
		if !v.Valid {
			continue
		}
		seen = true
		s := strings.TrimSpace(v.String)
		if isInt && !intRegex.MatchString(s) {
			isInt = false
		}
		if isFloat && !floatRegex.MatchString(s) {
			isFloat = false
		}
		if isBool && !isBoolLiteral(s) {
			isBool = false
		}
		if !isInt && !isFloat && !isBool {
			return KindText
		}
	}
	switch {
	case !seen:
		return KindText
	case isInt:
		return KindInt
	case isFloat:
		return KindFloat
	case isBool:
		return KindBool
	default:
		return KindText
	}
}

func isBoolLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

// typedValue converts a valid cell to the Go value for its column kind.
// Values that no longer parse fall back to their string form.
func typedValue(k Kind, v Value) any {
	if !v.Valid {
		return nil
	}
	s := strings.TrimSpace(v.String)
	switch k {
	case KindInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case KindFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case KindBool:
		if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
			return b
		}
	}
	return v.String
}
