package models

import (
	"errors"
	"testing"
)

func TestNewStudent_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
	}{
		{"missing uid", Identity{GivenName: "Ana", FamilyName: "Le Goff", HomeInstitution: "0290009C"}},
		{"missing given name", Identity{UID: "F1700IVH", FamilyName: "Le Goff", HomeInstitution: "0290009C"}},
		{"missing family name", Identity{UID: "F1700IVH", GivenName: "Ana", HomeInstitution: "0290009C"}},
		{"missing home institution", Identity{UID: "F1700IVH", GivenName: "Ana", FamilyName: "Le Goff"}},
		{"blank uid", Identity{UID: "   ", GivenName: "Ana", FamilyName: "Le Goff", HomeInstitution: "0290009C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStudent(tt.id, nil, "", "none@example.org")
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestNewStudent_DefaultMail(t *testing.T) {
	s, err := NewStudent(Identity{
		UID: "F1700IVH", GivenName: " Ana ", FamilyName: "Le Goff", HomeInstitution: "0290009C",
	}, []ClassRef{{Institution: "0290009C", Name: "TS2"}}, " 1ERE ", "none@example.org")
	if err != nil {
		t.Fatalf("NewStudent failed: %v", err)
	}
	if s.Mail != "none@example.org" {
		t.Errorf("Mail: got %q, want sentinel", s.Mail)
	}
	if s.GivenName != "Ana" {
		t.Errorf("GivenName not trimmed: %q", s.GivenName)
	}
	if s.TrainingLevel != "1ERE" {
		t.Errorf("TrainingLevel: got %q", s.TrainingLevel)
	}
	if s.Kind() != KindStudent {
		t.Errorf("Kind: got %q", s.Kind())
	}
}

func TestIdentity_HasProfileAndAttachedTo(t *testing.T) {
	id := Identity{
		HomeInstitution: "0290009C",
		Institutions:    []string{"0290009C", "0291234X"},
		Profiles:        []string{"National_ENS", "national_dir"},
	}
	if !id.HasProfile("National_DIR") {
		t.Error("expected case-insensitive profile match")
	}
	if id.HasProfile("National_ELV") {
		t.Error("unexpected profile match")
	}
	if !id.AttachedTo("0291234X") || !id.AttachedTo("0290009C") {
		t.Error("expected attachment to both institutions")
	}
	if id.AttachedTo("0000000A") {
		t.Error("unexpected attachment")
	}
}

func TestUser_LastConnection(t *testing.T) {
	tests := []struct {
		name string
		u    User
		want int64
	}{
		{"never connected", User{TimeCreated: 100}, 100},
		{"last access wins", User{TimeCreated: 100, LastAccess: 300, LastLogin: 200}, 300},
		{"last login wins", User{TimeCreated: 100, LastAccess: 200, LastLogin: 400}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.LastConnection(); got != tt.want {
				t.Errorf("LastConnection() = %d, want %d", got, tt.want)
			}
		})
	}
}
