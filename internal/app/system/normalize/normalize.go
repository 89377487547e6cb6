// Package normalize canonicalizes the natural keys shared by the directory
// and the LMS.
package normalize

import (
	"strings"

	"github.com/dalemusser/waffle/pantry/text"
)

// Username maps a directory uid to the LMS account username.
func Username(uid string) string {
	return strings.ToLower(strings.TrimSpace(uid))
}

// Code canonicalizes an institution registry code ("0290009c " -> "0290009C").
func Code(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Email trims and lowercases a mail address.
func Email(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Name collapses runs of whitespace and trims the ends.
func Name(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Key folds a cohort strategy key (class name, training level) so that
// case and diacritic variants of the same label map to one cohort.
func Key(s string) string {
	return text.Fold(Name(s))
}

// Codes canonicalizes a list of codes, dropping blanks and duplicates while
// keeping the first-seen order.
func Codes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = Code(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
