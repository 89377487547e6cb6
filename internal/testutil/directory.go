package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/directory"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
)

// TestMail is the default mail used by the person builders.
const TestMail = "noreply@example.org"

// FakeDirectory is an in-memory directory.Reader.
type FakeDirectory struct {
	mu           sync.Mutex
	institutions []models.Institution
	people       []models.Person
	rejected     []directory.Rejected
	filters      map[string][]string

	// Err, when set, is returned by every call.
	Err error
	// Queries records every People query.
	Queries []directory.Query
}

// NewFakeDirectory returns an empty directory.
func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{filters: make(map[string][]string)}
}

// AddInstitution adds or replaces an institution.
func (f *FakeDirectory) AddInstitution(inst models.Institution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.institutions = slices.DeleteFunc(f.institutions, func(i models.Institution) bool { return i.Code == inst.Code })
	f.institutions = append(f.institutions, inst)
}

// AddPerson adds or replaces a person, keyed by uid.
func (f *FakeDirectory) AddPerson(p models.Person) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := p.Ident().UID
	f.people = slices.DeleteFunc(f.people, func(q models.Person) bool { return q.Ident().UID == uid })
	f.people = append(f.people, p)
}

// RemovePerson removes a person by uid.
func (f *FakeDirectory) RemovePerson(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.people = slices.DeleteFunc(f.people, func(q models.Person) bool { return q.Ident().UID == uid })
}

// Reject adds an entry that People reports as unmappable. A leading uid RDN
// becomes the entry's username.
func (f *FakeDirectory) Reject(dn string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := ""
	rdn, _, _ := strings.Cut(dn, ",")
	if v, ok := strings.CutPrefix(rdn, "uid="); ok {
		uid = normalize.Username(v)
	}
	f.rejected = append(f.rejected, directory.Rejected{DN: dn, UID: uid, Err: err})
}

// SetFilter declares which uids a raw filter matches.
func (f *FakeDirectory) SetFilter(filter string, uids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters[filter] = uids
}

// Institutions implements directory.Reader.
func (f *FakeDirectory) Institutions(ctx context.Context, q directory.InstitutionQuery) ([]models.Institution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Institution
	for _, inst := range f.institutions {
		if len(q.Codes) > 0 && !slices.Contains(q.Codes, inst.Code) {
			continue
		}
		if !q.Since.IsZero() && inst.ModifiedAt.Before(q.Since) {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// People implements directory.Reader.
func (f *FakeDirectory) People(ctx context.Context, q directory.Query) (directory.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, q)
	if f.Err != nil {
		return directory.Batch{}, f.Err
	}

	var b directory.Batch
	for _, p := range f.people {
		id := p.Ident()
		if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, p.Kind()) {
			continue
		}
		if q.Institution != "" && !id.AttachedTo(q.Institution) {
			continue
		}
		if !q.Since.IsZero() && id.ModifiedAt.Before(q.Since) {
			continue
		}
		if q.Filter != "" && !slices.Contains(f.filters[q.Filter], id.UID) {
			continue
		}
		b.People = append(b.People, p)
	}
	b.Rejected = append(b.Rejected, f.rejected...)
	return b, nil
}

// UIDs implements directory.Reader.
func (f *FakeDirectory) UIDs(ctx context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	uids := make(map[string]struct{}, len(f.people))
	for _, p := range f.people {
		uids[normalize.Username(p.Ident().UID)] = struct{}{}
	}
	return uids, nil
}

// Student builds a valid student of home whose classes all belong to home.
func Student(uid, home, level string, classes ...string) *models.Student {
	refs := make([]models.ClassRef, 0, len(classes))
	for _, c := range classes {
		refs = append(refs, models.ClassRef{Institution: home, Name: c})
	}
	s, err := models.NewStudent(models.Identity{
		UID:             uid,
		GivenName:       "Given " + uid,
		FamilyName:      "Family " + uid,
		HomeInstitution: home,
		Institutions:    []string{home},
		ModifiedAt:      FixtureTime,
	}, refs, level, TestMail)
	if err != nil {
		panic(err)
	}
	return s
}

// Teacher builds a valid teacher of home attached to institutions (home is
// always included) and teaching classes of home.
func Teacher(uid, home string, institutions []string, classes ...string) *models.Teacher {
	refs := make([]models.ClassRef, 0, len(classes))
	for _, c := range classes {
		refs = append(refs, models.ClassRef{Institution: home, Name: c})
	}
	attached := []string{home}
	for _, code := range institutions {
		if code != home {
			attached = append(attached, code)
		}
	}
	t, err := models.NewTeacher(models.Identity{
		UID:             uid,
		GivenName:       "Given " + uid,
		FamilyName:      "Family " + uid,
		HomeInstitution: home,
		Institutions:    attached,
		Profiles:        []string{"National_ENS"},
		ModifiedAt:      FixtureTime,
	}, refs, TestMail)
	if err != nil {
		panic(err)
	}
	return t
}

// Staff builds a valid staff member of home with the given profiles.
func Staff(uid, home string, profiles ...string) *models.Staff {
	s, err := models.NewStaff(models.Identity{
		UID:             uid,
		GivenName:       "Given " + uid,
		FamilyName:      "Family " + uid,
		HomeInstitution: home,
		Institutions:    []string{home},
		Profiles:        profiles,
		ModifiedAt:      FixtureTime,
	}, TestMail)
	if err != nil {
		panic(err)
	}
	return s
}
