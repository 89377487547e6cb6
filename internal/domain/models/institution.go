// internal/domain/models/institution.go
package models

import "time"

// Institution is an establishment as reported by the directory, identified
// by its national registry code.
type Institution struct {
	Code       string
	Name       string
	Type       string
	Department string
	Domains    []string
	ModifiedAt time.Time
}

// Grouping merges several institutions under one LMS category.
type Grouping struct {
	Key   string
	Name  string
	Codes []string
}

// Contains reports whether code belongs to the grouping.
func (g Grouping) Contains(code string) bool {
	for _, c := range g.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// Groupings is the configured list of institution groupings.
type Groupings []Grouping

// Of returns the grouping that contains code.
func (gs Groupings) Of(code string) (Grouping, bool) {
	for _, g := range gs {
		if g.Contains(code) {
			return g, true
		}
	}
	return Grouping{}, false
}

// KeyOf returns the category key of an institution: the grouping key when
// the institution is grouped, the code otherwise.
func (gs Groupings) KeyOf(code string) string {
	if g, ok := gs.Of(code); ok {
		return g.Key
	}
	return code
}
