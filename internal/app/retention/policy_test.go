package retention

import (
	"testing"
	"time"
)

func TestVerdict_String(t *testing.T) {
	tests := map[Verdict]string{
		NoOp:        "no_op",
		Anonymize:   "anonymize",
		Delete:      "delete",
		ForceDelete: "force_delete",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(v), got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name   string
		facts  Facts
		want   Verdict
		reason string
	}{
		{"student in grace period", Facts{Age: 10 * Day}, NoOp, ReasonGracePeriod},
		{"student inactive", Facts{Age: 70 * Day}, Anonymize, ReasonInactive},
		{"student deletable", Facts{Age: 100 * Day}, Delete, ReasonInactive},
		{"student with references", Facts{Age: 100 * Day, HasReferences: true}, Anonymize, ReasonReferences},
		{"student still enrolled", Facts{Age: 100 * Day, Enrolled: true}, Anonymize, ReasonEnrolled},
		{"forgotten student with references", Facts{Age: 6 * 365 * Day, HasReferences: true, Enrolled: true}, ForceDelete, ReasonForceDelete},
		{"teacher keeps a longer grace period", Facts{Age: 100 * Day, Teacher: true}, NoOp, ReasonGracePeriod},
		{"inactive teacher", Facts{Age: 400 * Day, Teacher: true}, Anonymize, ReasonInactive},
		{"deletable teacher", Facts{Age: 4 * 365 * Day, Teacher: true}, Delete, ReasonInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := Classify(p, tc.facts)
			if got != tc.want || reason != tc.reason {
				t.Errorf("Classify = (%s, %q), want (%s, %q)", got, reason, tc.want, tc.reason)
			}
		})
	}
}

func TestClassify_Monotonic(t *testing.T) {
	p := DefaultPolicy()
	for _, teacher := range []bool{false, true} {
		for _, refs := range []bool{false, true} {
			for _, enrolled := range []bool{false, true} {
				prev := NoOp
				for age := time.Duration(0); age <= 7*365*Day; age += 5 * Day {
					v, _ := Classify(p, Facts{Age: age, Teacher: teacher, HasReferences: refs, Enrolled: enrolled})
					if v < prev {
						t.Fatalf("teacher=%v refs=%v enrolled=%v: verdict went from %s to %s at %s",
							teacher, refs, enrolled, prev, v, age)
					}
					prev = v
				}
			}
		}
	}
}

func TestClassify_ReferenceSafety(t *testing.T) {
	p := DefaultPolicy()
	for age := time.Duration(0); age < p.ForceDeleteAfter; age += Day {
		for _, teacher := range []bool{false, true} {
			v, _ := Classify(p, Facts{Age: age, Teacher: teacher, HasReferences: true})
			if v == Delete || v == ForceDelete {
				t.Fatalf("account with references got %s at %s", v, age)
			}
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero anonymize threshold", func(p *Policy) { p.Student.AnonymizeAfter = 0 }},
		{"delete before anonymize", func(p *Policy) { p.Teacher.DeleteAfter = p.Teacher.AnonymizeAfter - Day }},
		{"force delete before delete", func(p *Policy) { p.ForceDeleteAfter = p.Teacher.DeleteAfter - Day }},
		{"negative backup delay", func(p *Policy) { p.BackupDelay = -Day }},
		{"no managed auth", func(p *Policy) { p.ManagedAuth = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPolicy()
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
