package directory

import (
	"errors"
	"reflect"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/go-ldap/ldap/v3"
)

const sentinelMail = "noreply@example.org"

func studentEntry(uid string) *ldap.Entry {
	return ldap.NewEntry("uid="+uid+",ou=people,dc=example,dc=org", map[string][]string{
		AttrObjectClass:     {"top", ClassStudent},
		AttrUID:             {uid},
		AttrGivenName:       {"Jeanne"},
		AttrFamilyName:      {"Martin"},
		AttrHomeInstitution: {"0290009c"},
		AttrInstitutions:    {"0290009C", "0290010D"},
		AttrStudentClasses: {
			"ENTStructureUAI=0290009C,ou=structures,dc=example,dc=org$TS2",
			"0290010D$1ERE S",
			"$TS2",
		},
		AttrTrainingLevel:   {"TERMINALE GENERALE"},
		AttrModifyTimestamp: {"20240901120000Z"},
	})
}

func TestToPerson_Student(t *testing.T) {
	p, err := ToPerson(studentEntry("F1700IVH"), sentinelMail)
	if err != nil {
		t.Fatalf("ToPerson failed: %v", err)
	}
	s, ok := p.(*models.Student)
	if !ok {
		t.Fatalf("expected *models.Student, got %T", p)
	}
	if s.UID != "F1700IVH" || s.HomeInstitution != "0290009C" {
		t.Errorf("unexpected identity: %+v", s.Identity)
	}
	if s.Mail != sentinelMail {
		t.Errorf("Mail = %q, want sentinel", s.Mail)
	}
	want := []models.ClassRef{
		{Institution: "0290009C", Name: "TS2"},
		{Institution: "0290010D", Name: "1ERE S"},
	}
	if !reflect.DeepEqual(s.Classes, want) {
		t.Errorf("Classes = %+v, want %+v", s.Classes, want)
	}
	if s.TrainingLevel != "TERMINALE GENERALE" {
		t.Errorf("TrainingLevel = %q", s.TrainingLevel)
	}
	if s.ModifiedAt.IsZero() {
		t.Error("expected ModifiedAt to be parsed")
	}
}

func TestToPerson_TeacherClasses(t *testing.T) {
	e := ldap.NewEntry("uid=T1,ou=people,dc=example,dc=org", map[string][]string{
		AttrObjectClass:     {ClassTeacher},
		AttrUID:             {"T1"},
		AttrGivenName:       {"Paul"},
		AttrFamilyName:      {"Durand"},
		AttrMail:            {"paul.durand@example.org"},
		AttrHomeInstitution: {"0290009C"},
		AttrTeacherClasses:  {"ENTStructureSIREN=123,ou=structures,dc=example,dc=org$TS1"},
	})
	p, err := ToPerson(e, sentinelMail)
	if err != nil {
		t.Fatalf("ToPerson failed: %v", err)
	}
	teacher, ok := p.(*models.Teacher)
	if !ok {
		t.Fatalf("expected *models.Teacher, got %T", p)
	}
	want := []models.ClassRef{{Institution: "0290009C", Name: "TS1"}}
	if !reflect.DeepEqual(teacher.Classes, want) {
		t.Errorf("Classes = %+v, want %+v", teacher.Classes, want)
	}
	if teacher.Mail != "paul.durand@example.org" {
		t.Errorf("Mail = %q", teacher.Mail)
	}
}

func TestToPerson_MissingRequired(t *testing.T) {
	e := ldap.NewEntry("uid=X,ou=people,dc=example,dc=org", map[string][]string{
		AttrObjectClass: {ClassStaffLocal},
		AttrUID:         {"X"},
		AttrGivenName:   {"No"},
		AttrFamilyName:  {"Home"},
	})
	_, err := ToPerson(e, sentinelMail)
	if !errors.Is(err, models.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestToPerson_UnknownKind(t *testing.T) {
	e := ldap.NewEntry("cn=printer,dc=example,dc=org", map[string][]string{
		AttrObjectClass: {"device"},
	})
	if _, err := ToPerson(e, sentinelMail); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestToInstitution(t *testing.T) {
	e := ldap.NewEntry("ENTStructureUAI=0290009C,ou=structures,dc=example,dc=org", map[string][]string{
		AttrStructureCode: {"0290009c"},
		AttrStructureName: {"LYCEE  JEAN MOULIN"},
		AttrStructureType: {"LYCEE"},
		AttrDepartment:    {"29"},
		AttrDomains:       {"lycees.example.org", " "},
	})
	inst, err := ToInstitution(e)
	if err != nil {
		t.Fatalf("ToInstitution failed: %v", err)
	}
	if inst.Code != "0290009C" || inst.Name != "LYCEE JEAN MOULIN" || inst.Department != "29" {
		t.Errorf("unexpected institution: %+v", inst)
	}
	if !reflect.DeepEqual(inst.Domains, []string{"lycees.example.org"}) {
		t.Errorf("Domains = %v", inst.Domains)
	}

	if _, err := ToInstitution(ldap.NewEntry("ou=x", nil)); err == nil {
		t.Error("expected error for entry without code")
	}
}
