// internal/app/directory/mapping.go
package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/go-ldap/ldap/v3"
)

// ErrUnknownKind is returned for a person entry whose object classes match
// no supported record kind.
var ErrUnknownKind = errors.New("entry has no supported person object class")

// ToInstitution maps an ENTEtablissement entry.
func ToInstitution(e *ldap.Entry) (models.Institution, error) {
	code := normalize.Code(e.GetAttributeValue(AttrStructureCode))
	if code == "" {
		return models.Institution{}, fmt.Errorf("%s: %w: %s", e.DN, models.ErrMissingField, AttrStructureCode)
	}
	inst := models.Institution{
		Code:       code,
		Name:       normalize.Name(e.GetAttributeValue(AttrStructureName)),
		Type:       normalize.Name(e.GetAttributeValue(AttrStructureType)),
		Department: strings.TrimSpace(e.GetAttributeValue(AttrDepartment)),
		Domains:    trimAll(e.GetAttributeValues(AttrDomains)),
	}
	if inst.Name == "" {
		inst.Name = code
	}
	if ts := e.GetAttributeValue(AttrModifyTimestamp); ts != "" {
		if t, err := ParseTimestamp(ts); err == nil {
			inst.ModifiedAt = t
		}
	}
	return inst, nil
}

// KindOf returns the record kind selected by the entry's object classes.
func KindOf(e *ldap.Entry) (models.PersonKind, bool) {
	for _, oc := range e.GetAttributeValues(AttrObjectClass) {
		switch {
		case strings.EqualFold(oc, ClassStudent):
			return models.KindStudent, true
		case strings.EqualFold(oc, ClassTeacher):
			return models.KindTeacher, true
		case strings.EqualFold(oc, ClassStaffInstitution), strings.EqualFold(oc, ClassStaffLocal):
			return models.KindStaff, true
		}
	}
	return "", false
}

// ToPerson maps a person entry onto the record of its kind. Construction
// fails when a required attribute is missing.
func ToPerson(e *ldap.Entry, defaultMail string) (models.Person, error) {
	kind, ok := KindOf(e)
	if !ok {
		return nil, fmt.Errorf("%s: %w", e.DN, ErrUnknownKind)
	}

	id := models.Identity{
		UID:             e.GetAttributeValue(AttrUID),
		GivenName:       normalize.Name(e.GetAttributeValue(AttrGivenName)),
		FamilyName:      normalize.Name(e.GetAttributeValue(AttrFamilyName)),
		Mail:            e.GetAttributeValue(AttrMail),
		HomeInstitution: normalize.Code(e.GetAttributeValue(AttrHomeInstitution)),
		Institutions:    normalize.Codes(e.GetAttributeValues(AttrInstitutions)),
		Profiles:        trimAll(e.GetAttributeValues(AttrProfiles)),
		Memberships:     trimAll(e.GetAttributeValues(AttrMemberOf)),
		Domains:         trimAll(e.GetAttributeValues(AttrDomains)),
	}
	if ts := e.GetAttributeValue(AttrModifyTimestamp); ts != "" {
		if t, err := ParseTimestamp(ts); err == nil {
			id.ModifiedAt = t
		}
	}

	var (
		p   models.Person
		err error
	)
	switch kind {
	case models.KindStudent:
		classes := ParseClasses(e.GetAttributeValues(AttrStudentClasses), id.HomeInstitution)
		p, err = models.NewStudent(id, classes, normalize.Name(e.GetAttributeValue(AttrTrainingLevel)), defaultMail)
	case models.KindTeacher:
		classes := ParseClasses(e.GetAttributeValues(AttrTeacherClasses), id.HomeInstitution)
		p, err = models.NewTeacher(id, classes, defaultMail)
	default:
		p, err = models.NewStaff(id, defaultMail)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.DN, err)
	}
	return p, nil
}

// ParseClasses splits "<structure>$<class>" values. The structure part is a
// DN carrying an ENTStructureUAI RDN or a bare institution code; when it is
// empty or names the structure some other way the class belongs to home.
func ParseClasses(values []string, home string) []models.ClassRef {
	var out []models.ClassRef
	seen := make(map[models.ClassRef]struct{})
	for _, v := range values {
		structure, class, found := strings.Cut(v, ClassSeparator)
		if !found {
			structure, class = "", v
		}
		class = normalize.Name(class)
		if class == "" {
			continue
		}
		ref := models.ClassRef{Institution: structureCode(structure, home), Name: class}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func structureCode(structure, home string) string {
	structure = strings.TrimSpace(structure)
	if structure == "" {
		return home
	}
	if !strings.Contains(structure, "=") {
		return normalize.Code(structure)
	}
	dn, err := ldap.ParseDN(structure)
	if err != nil {
		return home
	}
	for _, rdn := range dn.RDNs {
		for _, atv := range rdn.Attributes {
			if strings.EqualFold(atv.Type, AttrStructureCode) {
				return normalize.Code(atv.Value)
			}
		}
	}
	return home
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
