// internal/domain/models/person.go
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PersonKind discriminates the Person variants.
type PersonKind string

const (
	KindStudent PersonKind = "student"
	KindTeacher PersonKind = "teacher"
	KindStaff   PersonKind = "staff"
)

// ErrMissingField is returned when a directory record lacks a required field.
var ErrMissingField = errors.New("directory record is missing a required field")

// Identity holds the fields every directory person carries.
//
// UID, GivenName, FamilyName and HomeInstitution are required. Mail is
// optional and defaults to a sentinel chosen by the caller.
type Identity struct {
	UID             string
	GivenName       string
	FamilyName      string
	Mail            string
	HomeInstitution string
	Institutions    []string // every institution code the person is attached to
	Profiles        []string // profile markers (e.g. National_ENS, National_DIR)
	Memberships     []string // group membership attribute values
	Domains         []string
	ModifiedAt      time.Time
}

// ClassRef names one class of one institution.
type ClassRef struct {
	Institution string
	Name        string
}

// Person is implemented by Student, Teacher and Staff.
type Person interface {
	Kind() PersonKind
	Ident() *Identity
}

// Student is a directory learner.
type Student struct {
	Identity
	Classes       []ClassRef
	TrainingLevel string // optional
}

// Teacher is a directory teacher.
type Teacher struct {
	Identity
	Classes []ClassRef
}

// Staff is any other directory person (administrative staff, directors, ...).
type Staff struct {
	Identity
}

func (s *Student) Kind() PersonKind { return KindStudent }
func (s *Student) Ident() *Identity { return &s.Identity }
func (t *Teacher) Kind() PersonKind { return KindTeacher }
func (t *Teacher) Ident() *Identity { return &t.Identity }
func (s *Staff) Kind() PersonKind   { return KindStaff }
func (s *Staff) Ident() *Identity   { return &s.Identity }

// NewStudent validates id and returns a Student.
func NewStudent(id Identity, classes []ClassRef, level string, defaultMail string) (*Student, error) {
	if err := id.complete(defaultMail); err != nil {
		return nil, err
	}
	return &Student{Identity: id, Classes: classes, TrainingLevel: strings.TrimSpace(level)}, nil
}

// NewTeacher validates id and returns a Teacher.
func NewTeacher(id Identity, classes []ClassRef, defaultMail string) (*Teacher, error) {
	if err := id.complete(defaultMail); err != nil {
		return nil, err
	}
	return &Teacher{Identity: id, Classes: classes}, nil
}

// NewStaff validates id and returns a Staff.
func NewStaff(id Identity, defaultMail string) (*Staff, error) {
	if err := id.complete(defaultMail); err != nil {
		return nil, err
	}
	return &Staff{Identity: id}, nil
}

func (id *Identity) complete(defaultMail string) error {
	id.UID = strings.TrimSpace(id.UID)
	id.GivenName = strings.TrimSpace(id.GivenName)
	id.FamilyName = strings.TrimSpace(id.FamilyName)
	id.HomeInstitution = strings.TrimSpace(id.HomeInstitution)
	switch {
	case id.UID == "":
		return fmt.Errorf("%w: uid", ErrMissingField)
	case id.GivenName == "":
		return fmt.Errorf("%w: givenName (uid %s)", ErrMissingField, id.UID)
	case id.FamilyName == "":
		return fmt.Errorf("%w: sn (uid %s)", ErrMissingField, id.UID)
	case id.HomeInstitution == "":
		return fmt.Errorf("%w: home institution (uid %s)", ErrMissingField, id.UID)
	}
	if strings.TrimSpace(id.Mail) == "" {
		id.Mail = defaultMail
	}
	return nil
}

// HasProfile reports whether the person carries one of the given profile markers.
func (id *Identity) HasProfile(markers ...string) bool {
	for _, p := range id.Profiles {
		for _, m := range markers {
			if strings.EqualFold(p, m) {
				return true
			}
		}
	}
	return false
}

// AttachedTo reports whether code is the home institution or one of the
// institutions the person is attached to.
func (id *Identity) AttachedTo(code string) bool {
	if id.HomeInstitution == code {
		return true
	}
	for _, c := range id.Institutions {
		if c == code {
			return true
		}
	}
	return false
}
