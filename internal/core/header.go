package core

import (
	"strconv"
	"strings"
)

// NormalizeHeader canonicalizes one column name: trim, lowercase, and
// spaces to underscores. It is pure and does not resolve collisions.
func NormalizeHeader(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// NormalizeHeaders normalizes every name and resolves collisions: the first
// occurrence keeps its name, later ones take the smallest free _N suffix.
// A name that is blank after normalization becomes unnamed_<index>.
func NormalizeHeaders(names []string) []string {
	out := make([]string, len(names))
	base := make([]string, len(names))
	taken := make(map[string]struct{}, len(names))

	for i, n := range names {
		b := NormalizeHeader(n)
		if b == "" {
			b = "unnamed_" + strconv.Itoa(i)
		}
		base[i] = b
	}

	// First pass reserves every base name so a suffixed duplicate never
	// steals a name that appears verbatim later in the header.
	first := make(map[string]int, len(names))
	for i, b := range base {
		if _, ok := first[b]; !ok {
			first[b] = i
			taken[b] = struct{}{}
		}
	}

	for i, b := range base {
		if first[b] == i {
			out[i] = b
			continue
		}
		for n := 1; ; n++ {
			candidate := b + "_" + strconv.Itoa(n)
			if _, ok := taken[candidate]; !ok {
				taken[candidate] = struct{}{}
				out[i] = candidate
				break
			}
		}
	}
	return out
}
