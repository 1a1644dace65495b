package shared

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// quoteVariants are split points that search backends encode inconsistently.
var quoteVariants = []rune{'\'', '’', '‘', '‛', '`', '´'}

// LongestSafeSubstring splits name on every quote or apostrophe variant and returns the
// longest remaining segment, trimmed. The first segment wins on ties.
func LongestSafeSubstring(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		for _, q := range quoteVariants {
			if r == q {
				return true
			}
		}
		return false
	})

	longest, size := "", 0
	for _, p := range parts {
		if n := utf8.RuneCountInString(p); n > size {
			longest, size = p, n
		}
	}
	return strings.TrimSpace(longest)
}

var folder = cases.Fold()

// NormalizeName lowercases s with Unicode case folding, applies NFC and collapses whitespace.
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = folder.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// NormalizeSet returns the set of normalized, non-empty names.
func NormalizeSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if k := NormalizeName(n); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// SetsEqual reports whether two normalized name sets contain exactly the same members.
// Two empty sets are not considered equal.
func SetsEqual(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// SetsOverlap reports whether the sets share at least one member.
func SetsOverlap(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
