package faq

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds s into the form used for matching and cache keys:
// NFKC, lower case, punctuation replaced by single spaces, trimmed.
// Apostrophes are dropped so "what's" and "whats" agree.
func Normalize(s string) string {
	s = cases.Lower(language.Und).String(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// words splits a normalized string into distinct words, keeping first-seen order.
func words(normalized string) []string {
	fields := strings.Fields(normalized)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
