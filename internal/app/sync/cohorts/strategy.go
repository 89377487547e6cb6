package cohorts

import (
	"fmt"
	"sort"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/htmlsanitize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
)

// Strategy kinds, the first segment of a managed cohort idnumber.
const (
	KindClassStudents = "class"
	KindClassTeachers = "teachers-class"
	KindLevel         = "level"
	KindEstablishment = "establishment"
	KindFilter        = "filter"
)

// Templates hold the cohort name formats; %s is the strategy key label.
type Templates struct {
	ClassStudents string
	ClassTeachers string
	Level         string
	Establishment string
}

// DefaultTemplates returns the cohort names used by the LMS administrators.
func DefaultTemplates() Templates {
	return Templates{
		ClassStudents: "Élèves de la classe %s",
		ClassTeachers: "Enseignants de la classe %s",
		Level:         "Élèves du niveau de formation %s",
		Establishment: "Enseignants de l'établissement %s",
	}
}

// Group is the desired state of one cohort.
type Group struct {
	IDNumber    string
	Name        string
	Description string
	Members     []string // usernames
}

// Strategy derives the desired cohorts of one scope from a full directory
// snapshot of that scope.
type Strategy interface {
	// Prefix is the idnumber prefix shared by every cohort the strategy
	// owns. A cohort under the prefix without a desired group is dissolved.
	Prefix() string
	Groups(people []models.Person) []Group
}

func idPrefix(kind, scope string) string {
	return kind + ":" + scope + ":"
}

// builder accumulates groups keyed by folded strategy key.
type builder struct {
	prefix   string
	template string
	suffix   string
	groups   map[string]*Group
	seen     map[string]map[string]struct{}
}

func newBuilder(prefix, template, suffix string) *builder {
	return &builder{
		prefix:   prefix,
		template: template,
		suffix:   suffix,
		groups:   make(map[string]*Group),
		seen:     make(map[string]map[string]struct{}),
	}
}

// add puts uid in the group of label, keyed by the folded label.
func (b *builder) add(label, uid string) {
	b.addKeyed(label, label, uid)
}

// addKeyed puts uid in the group identified by key and named after label.
func (b *builder) addKeyed(key, label, uid string) {
	label = normalize.Name(label)
	key = normalize.Key(key)
	if key == "" {
		return
	}
	g, ok := b.groups[key]
	if !ok {
		g = &Group{
			IDNumber: b.prefix + key,
			Name:     htmlsanitize.Text(fmt.Sprintf(b.template, label)) + b.suffix,
		}
		b.groups[key] = g
		b.seen[key] = make(map[string]struct{})
	}
	username := normalize.Username(uid)
	if _, dup := b.seen[key][username]; dup {
		return
	}
	b.seen[key][username] = struct{}{}
	g.Members = append(g.Members, username)
}

func (b *builder) result() []Group {
	out := make([]Group, 0, len(b.groups))
	for _, g := range b.groups {
		sort.Strings(g.Members)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IDNumber < out[j].IDNumber })
	return out
}

// ClassStrategy groups the students (or the teachers) of each class of one
// institution.
type ClassStrategy struct {
	Institution string
	Teachers    bool
	Template    string
	// Suffix is appended to names, to keep them unique when several
	// institutions share a category.
	Suffix string
}

func (s ClassStrategy) kind() string {
	if s.Teachers {
		return KindClassTeachers
	}
	return KindClassStudents
}

func (s ClassStrategy) Prefix() string {
	return idPrefix(s.kind(), s.Institution)
}

func (s ClassStrategy) Groups(people []models.Person) []Group {
	b := newBuilder(s.Prefix(), s.Template, s.Suffix)
	for _, p := range people {
		var classes []models.ClassRef
		switch v := p.(type) {
		case *models.Student:
			if !s.Teachers {
				classes = v.Classes
			}
		case *models.Teacher:
			if s.Teachers {
				classes = v.Classes
			}
		}
		for _, c := range classes {
			if c.Institution == s.Institution {
				b.add(c.Name, p.Ident().UID)
			}
		}
	}
	return b.result()
}

// LevelStrategy groups the students of one institution by training level.
type LevelStrategy struct {
	Institution string
	Template    string
	Suffix      string
}

func (s LevelStrategy) Prefix() string {
	return idPrefix(KindLevel, s.Institution)
}

func (s LevelStrategy) Groups(people []models.Person) []Group {
	b := newBuilder(s.Prefix(), s.Template, s.Suffix)
	for _, p := range people {
		st, ok := p.(*models.Student)
		if !ok || st.HomeInstitution != s.Institution {
			continue
		}
		b.add(st.TrainingLevel, st.UID)
	}
	return b.result()
}

// EstablishmentStrategy groups every teacher attached to one institution.
type EstablishmentStrategy struct {
	Institution string
	Name        string // institution display name
	Template    string
	Suffix      string
}

func (s EstablishmentStrategy) Prefix() string {
	return idPrefix(KindEstablishment, s.Institution)
}

func (s EstablishmentStrategy) Groups(people []models.Person) []Group {
	b := newBuilder(s.Prefix(), s.Template, s.Suffix)
	label := s.Name
	if label == "" {
		label = s.Institution
	}
	for _, p := range people {
		if p.Kind() == models.KindTeacher && p.Ident().AttachedTo(s.Institution) {
			b.addKeyed(s.Institution, label, p.Ident().UID)
		}
	}
	return b.result()
}

// FilterStrategy puts every person returned by a named directory filter in
// one cohort.
type FilterStrategy struct {
	Stream      string
	Name        string
	Description string
}

func (s FilterStrategy) Prefix() string {
	return idPrefix(KindFilter, normalize.Key(s.Stream))
}

func (s FilterStrategy) Groups(people []models.Person) []Group {
	if len(people) == 0 {
		return nil
	}
	b := newBuilder(s.Prefix(), "%s", "")
	for _, p := range people {
		b.addKeyed(s.Stream, s.Name, p.Ident().UID)
	}
	groups := b.result()
	for i := range groups {
		groups[i].Description = htmlsanitize.Text(s.Description)
	}
	return groups
}
