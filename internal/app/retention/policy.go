// Package retention decides what happens to LMS accounts that the directory
// no longer reports, and applies those decisions.
//
// An absent account ages through four verdicts as its last connection gets
// older: it is left alone during a grace period, then anonymized, then
// deleted unless it still carries references or enrolments, and finally
// deleted unconditionally.
package retention

import (
	"errors"
	"fmt"
	"time"
)

// Verdict is the classification of one absent account. Verdicts are
// ordered from the least to the most destructive.
type Verdict int

const (
	NoOp Verdict = iota
	Anonymize
	Delete
	ForceDelete
)

func (v Verdict) String() string {
	switch v {
	case NoOp:
		return "no_op"
	case Anonymize:
		return "anonymize"
	case Delete:
		return "delete"
	case ForceDelete:
		return "force_delete"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Reasons attached to decisions.
const (
	ReasonGracePeriod   = "grace period"
	ReasonInactive      = "inactive"
	ReasonReferences    = "has references"
	ReasonEnrolled      = "enrolled in a course"
	ReasonForceDelete   = "force delete threshold reached"
	ReasonUndeletable   = "undeletable"
	ReasonAnonymized    = "already anonymized"
	ReasonCourseBlocked = "owned course not backed up"
)

// Day is the unit thresholds are configured in.
const Day = 24 * time.Hour

// Thresholds are the connection ages at which an account of one role is
// anonymized and deleted.
type Thresholds struct {
	AnonymizeAfter time.Duration
	DeleteAfter    time.Duration
}

// Policy configures the retention engine.
type Policy struct {
	Student Thresholds
	Teacher Thresholds
	// ForceDeleteAfter deletes accounts even when they hold references.
	ForceDeleteAfter time.Duration
	// BackupDelay protects courses modified recently from being retired.
	BackupDelay time.Duration

	Undeletable  []string // uids never anonymized nor deleted
	TeacherRoles []string // role short names making an account a teacher
	OwnerRoles   []string // role short names owning a course
	ManagedAuth  string   // only accounts with this auth method are candidates

	// ProtectedPrefix marks courses that are never retired with their
	// owner (the institution private spaces).
	ProtectedPrefix string
}

// DefaultPolicy returns the thresholds used when none are configured.
func DefaultPolicy() Policy {
	return Policy{
		Student:          Thresholds{AnonymizeAfter: 60 * Day, DeleteAfter: 90 * Day},
		Teacher:          Thresholds{AnonymizeAfter: 365 * Day, DeleteAfter: 3 * 365 * Day},
		ForceDeleteAfter: 5 * 365 * Day,
		BackupDelay:      90 * Day,
		TeacherRoles:     []string{"editingteacher", "coursecreator"},
		OwnerRoles:       []string{"editingteacher"},
		ManagedAuth:      "cas",
	}
}

// Validate checks that thresholds only get more destructive with age.
func (p Policy) Validate() error {
	for role, th := range map[string]Thresholds{"student": p.Student, "teacher": p.Teacher} {
		if th.AnonymizeAfter <= 0 {
			return fmt.Errorf("retention: %s anonymize threshold must be positive", role)
		}
		if th.DeleteAfter < th.AnonymizeAfter {
			return fmt.Errorf("retention: %s delete threshold is below its anonymize threshold", role)
		}
		if p.ForceDeleteAfter < th.DeleteAfter {
			return fmt.Errorf("retention: force delete threshold is below the %s delete threshold", role)
		}
	}
	if p.BackupDelay < 0 {
		return errors.New("retention: backup delay must not be negative")
	}
	if p.ManagedAuth == "" {
		return errors.New("retention: managed auth method not set")
	}
	return nil
}

func (p Policy) thresholds(teacher bool) Thresholds {
	if teacher {
		return p.Teacher
	}
	return p.Student
}

func (p Policy) undeletable(uid string) bool {
	for _, u := range p.Undeletable {
		if u == uid {
			return true
		}
	}
	return false
}

// Facts are what Classify needs to know about an absent account.
type Facts struct {
	Age           time.Duration // since the last connection
	Teacher       bool
	HasReferences bool
	Enrolled      bool
}

// Decision is the verdict computed for one account. It is not persisted.
type Decision struct {
	UID     string
	Verdict Verdict
	Reason  string
}

// Classify returns the verdict for an absent account and its reason.
func Classify(p Policy, f Facts) (Verdict, string) {
	th := p.thresholds(f.Teacher)
	switch {
	case f.Age < th.AnonymizeAfter:
		return NoOp, ReasonGracePeriod
	case f.Age < th.DeleteAfter:
		return Anonymize, ReasonInactive
	case f.Age < p.ForceDeleteAfter:
		if f.HasReferences {
			return Anonymize, ReasonReferences
		}
		if f.Enrolled {
			return Anonymize, ReasonEnrolled
		}
		return Delete, ReasonInactive
	default:
		return ForceDelete, ReasonForceDelete
	}
}
