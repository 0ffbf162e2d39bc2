package storage

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackName is used when nothing safe is left of the client filename.
const fallbackName = "upload.csv"

// asciiFold decomposes characters (NFKD) and drops combining marks, so
// "Données" becomes "Donnees".
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// SanitizeFilename reduces a client-supplied filename to a safe base name:
// path separators split components, letters are ASCII-folded, whitespace
// runs become '_' and any other character outside [A-Za-z0-9_.-] is dropped.
// Leading and trailing '.' and '_' are trimmed.
func SanitizeFilename(name string) string {
	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (isAlnum(r) || r == '_' || r == '.' || r == '-') {
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallbackName
	}
	return out
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// validName reports whether name is a plain file name inside a store
// directory. Hidden names are reserved for temporary files.
func validName(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`) &&
		filepath.Base(name) == name
}
