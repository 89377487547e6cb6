// internal/app/directory/filter.go
package directory

import (
	"strings"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/go-ldap/ldap/v3"
)

// generalizedTimeLayout is the LDAP GeneralizedTime form used in filters.
const generalizedTimeLayout = "20060102150405Z"

// FormatTimestamp renders t as an LDAP GeneralizedTime in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(generalizedTimeLayout)
}

// ParseTimestamp parses a GeneralizedTime value, with or without fractional
// seconds and with a Z or numeric zone.
func ParseTimestamp(v string) (time.Time, error) {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		j := i + 1
		for j < len(v) && v[j] >= '0' && v[j] <= '9' {
			j++
		}
		v = v[:i] + v[j:]
	}
	return time.Parse("20060102150405Z0700", v)
}

func equals(attr, value string) string {
	return "(" + attr + "=" + ldap.EscapeFilter(value) + ")"
}

func and(parts ...string) string {
	parts = compact(parts)
	if len(parts) == 1 {
		return parts[0]
	}
	return "(&" + strings.Join(parts, "") + ")"
}

func or(parts ...string) string {
	parts = compact(parts)
	if len(parts) == 1 {
		return parts[0]
	}
	return "(|" + strings.Join(parts, "") + ")"
}

func compact(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func changedSince(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return "(" + AttrModifyTimestamp + ">=" + FormatTimestamp(t) + ")"
}

func classesFor(kind models.PersonKind) []string {
	switch kind {
	case models.KindStudent:
		return []string{ClassStudent}
	case models.KindTeacher:
		return []string{ClassTeacher}
	case models.KindStaff:
		return []string{ClassStaffInstitution, ClassStaffLocal}
	}
	return nil
}

// InstitutionFilter builds the search filter for q.
func InstitutionFilter(q InstitutionQuery) string {
	var codes []string
	for _, c := range q.Codes {
		codes = append(codes, equals(AttrStructureCode, c))
	}
	return and(
		equals(AttrObjectClass, ClassInstitution),
		or(codes...),
		changedSince(q.Since),
	)
}

// PeopleFilter builds the search filter for q. q.Filter is operator
// configuration and is used verbatim; every other value is escaped.
func PeopleFilter(q Query) string {
	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = []models.PersonKind{models.KindStudent, models.KindTeacher, models.KindStaff}
	}
	var classes []string
	for _, k := range kinds {
		for _, oc := range classesFor(k) {
			classes = append(classes, equals(AttrObjectClass, oc))
		}
	}

	inst := ""
	if q.Institution != "" {
		inst = equals(AttrInstitutions, q.Institution)
	}

	extra := strings.TrimSpace(q.Filter)
	if extra != "" && !strings.HasPrefix(extra, "(") {
		extra = "(" + extra + ")"
	}

	return and(
		or(classes...),
		inst,
		changedSince(q.Since),
		extra,
	)
}
