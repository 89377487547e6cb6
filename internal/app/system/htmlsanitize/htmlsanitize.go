// Package htmlsanitize cleans directory-supplied text before it is written
// to LMS columns that the LMS renders as HTML, such as category and cohort
// names.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// Text removes every tag and returns plain text. Entities produced by the
// sanitizer are decoded so that "A & B" round-trips unchanged.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
