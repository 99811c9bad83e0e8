// Package textnorm canonicalizes text so catalog names and customer queries
// compare on the same alphabet.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s and strips diacritics: "MÓDULO" becomes "modulo".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// Transformers are stateful; build a fresh chain per call so Normalize
	// is safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}
