// Package directory reads institutions and people from the authoritative
// LDAP directory and maps them onto typed records.
package directory

import (
	"context"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
)

// Reader is the read-only view of the directory used by the synchronization
// and retention passes.
type Reader interface {
	// Institutions returns the institutions whose code is listed in q.Codes
	// (all institutions when empty) modified at or after q.Since.
	Institutions(ctx context.Context, q InstitutionQuery) ([]models.Institution, error)
	// People returns the people matching q. Entries that cannot be mapped to a
	// valid record are returned in Batch.Rejected; they never fail the call.
	People(ctx context.Context, q Query) (Batch, error)
	// UIDs returns the uid of every person in the directory, lowercased.
	UIDs(ctx context.Context) (map[string]struct{}, error)
}

// InstitutionQuery selects institutions.
type InstitutionQuery struct {
	Codes []string
	Since time.Time // zero: no changed-since predicate
}

// Query selects people.
type Query struct {
	Kinds       []models.PersonKind // empty: every kind
	Institution string              // empty: any institution
	Since       time.Time           // zero: no changed-since predicate
	Filter      string              // optional raw LDAP filter ANDed with the rest
}

// Rejected is a directory entry that could not be mapped.
type Rejected struct {
	DN  string
	UID string // normalized username, empty when the entry has none
	Err error
}

// Batch is the result of a People query.
type Batch struct {
	People   []models.Person
	Rejected []Rejected
}

// RejectedUIDs returns the usernames of the rejected entries that carry a
// uid.
func (b Batch) RejectedUIDs() []string {
	var out []string
	for _, r := range b.Rejected {
		if r.UID != "" {
			out = append(out, r.UID)
		}
	}
	return out
}
