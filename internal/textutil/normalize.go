package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases text, drops every rune that is neither a letter, a digit
// nor whitespace, collapses whitespace runs and trims the result.
// Decomposed accents are composed first so "é" survives as a letter.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	composed := norm.NFC.String(raw)

	var b strings.Builder
	b.Grow(len(composed))
	pendingSpace := false
	for _, r := range composed {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}
