package retention

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/backup"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/courses"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/enrolments"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/references"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/roles"
	userstore "github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/users"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/auditlog"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/metrics"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/txn"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UIDLister returns the uids of every person of the directory.
type UIDLister interface {
	UIDs(ctx context.Context) (map[string]struct{}, error)
}

// Options are the optional collaborators of an Engine.
type Options struct {
	// DryRun computes and logs decisions without writing anything.
	DryRun  bool
	Metrics *metrics.Metrics
	Audit   *auditlog.Logger
}

// Summary counts what a retention pass did.
type Summary struct {
	Candidates     int // managed accounts absent from the directory
	NoOp           int
	Anonymized     int
	Deleted        int
	Skipped        int // undeletable or already anonymized
	Blocked        int // deletion postponed by an owned course
	CoursesRetired int
	Errors         int
	Decisions      []Decision
}

// Counts returns the summary as named counters.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"not_found":       s.Candidates,
		"no_op":           s.NoOp,
		"anonymized":      s.Anonymized,
		"deleted":         s.Deleted,
		"skipped":         s.Skipped,
		"blocked":         s.Blocked,
		"courses_retired": s.CoursesRetired,
		"errors":          s.Errors,
	}
}

// Engine applies a Policy to every managed account the directory no
// longer reports.
type Engine struct {
	db       *gorm.DB
	dir      UIDLister
	policy   Policy
	exporter backup.Exporter
	opts     Options
	logger   *zap.Logger

	undeletable map[string]struct{}
}

// New returns an Engine. A nil exporter disables course retirement, which
// blocks the deletion of every sole course owner.
func New(db *gorm.DB, dir UIDLister, policy Policy, exporter backup.Exporter, logger *zap.Logger, opts Options) *Engine {
	if exporter == nil {
		exporter = backup.Disabled
	}
	undeletable := make(map[string]struct{}, len(policy.Undeletable))
	for _, uid := range policy.Undeletable {
		undeletable[normalize.Username(uid)] = struct{}{}
	}
	return &Engine{
		db:          db,
		dir:         dir,
		policy:      policy,
		exporter:    exporter,
		opts:        opts,
		logger:      logger,
		undeletable: undeletable,
	}
}

// Run compares the managed LMS accounts with the full directory snapshot
// and applies a verdict to each absent account. Only a failure to read
// either side aborts the pass; per-account failures are counted.
func (e *Engine) Run(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary

	present, err := e.dir.UIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("retention: list directory uids: %w", err)
	}
	accounts, err := userstore.New(e.db).ListManaged(ctx, e.policy.ManagedAuth)
	if err != nil {
		return sum, fmt.Errorf("retention: list accounts: %w", err)
	}
	rs := roles.New(e.db)
	teacherRoles, err := rs.IDsByShortName(ctx, e.policy.TeacherRoles)
	if err != nil {
		return sum, fmt.Errorf("retention: teacher roles: %w", err)
	}
	ownerRoles, err := rs.IDsByShortName(ctx, e.policy.OwnerRoles)
	if err != nil {
		return sum, fmt.Errorf("retention: owner roles: %w", err)
	}

	for _, u := range accounts {
		if _, ok := present[u.Username]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Candidates++

		d, err := e.account(ctx, u, now, teacherRoles, ownerRoles, &sum)
		if err != nil {
			sum.Errors++
			e.logger.Error("retention failed",
				zap.String("uid", u.Username),
				zap.Int64("user_id", u.ID),
				zap.Error(err))
			continue
		}
		sum.Decisions = append(sum.Decisions, d)
		e.opts.Metrics.Verdict(d.Verdict.String())
	}

	e.logger.Info("retention pass completed",
		zap.Bool("dry_run", e.opts.DryRun),
		zap.Int("not_found", sum.Candidates),
		zap.Int("anonymized", sum.Anonymized),
		zap.Int("deleted", sum.Deleted),
		zap.Int("blocked", sum.Blocked),
		zap.Int("courses_retired", sum.CoursesRetired),
		zap.Int("errors", sum.Errors))
	return sum, nil
}

func (e *Engine) account(ctx context.Context, u models.User, now time.Time, teacherRoles, ownerRoles []int64, sum *Summary) (Decision, error) {
	d := Decision{UID: u.Username}
	log := e.logger.With(zap.String("uid", u.Username), zap.Int64("user_id", u.ID))

	if _, ok := e.undeletable[u.Username]; ok {
		d.Verdict, d.Reason = NoOp, ReasonUndeletable
		sum.Skipped++
		return d, nil
	}

	facts, err := e.facts(ctx, u, now, teacherRoles)
	if err != nil {
		return d, err
	}
	d.Verdict, d.Reason = Classify(e.policy, facts)

	switch d.Verdict {
	case NoOp:
		sum.NoOp++

	case Anonymize:
		if userstore.IsAnonymized(u) {
			d.Verdict, d.Reason = NoOp, ReasonAnonymized
			sum.Skipped++
			return d, nil
		}
		if !e.opts.DryRun {
			err := txn.Run(ctx, e.db, func(tx *gorm.DB) error {
				return userstore.New(tx).Anonymize(ctx, &u, now.Unix())
			})
			if err != nil {
				return d, err
			}
			e.opts.Audit.AccountAnonymized(ctx, d.UID, d.Reason)
		}
		sum.Anonymized++
		log.Info("account anonymized",
			zap.String("reason", d.Reason),
			zap.Duration("age", facts.Age),
			zap.Bool("dry_run", e.opts.DryRun))

	case Delete, ForceDelete:
		blocked, err := e.retireCourses(ctx, u, now, ownerRoles, sum)
		if err != nil {
			return d, err
		}
		if blocked {
			d.Reason = ReasonCourseBlocked
			sum.Blocked++
			log.Warn("account kept", zap.String("reason", d.Reason))
			return d, nil
		}
		if !e.opts.DryRun {
			err := txn.Run(ctx, e.db, func(tx *gorm.DB) error {
				return userstore.New(tx).Delete(ctx, u.ID)
			})
			if err != nil {
				return d, err
			}
			e.opts.Audit.AccountDeleted(ctx, d.UID, d.Reason)
		}
		sum.Deleted++
		log.Info("account deleted",
			zap.Stringer("verdict", d.Verdict),
			zap.String("reason", d.Reason),
			zap.Duration("age", facts.Age),
			zap.Bool("dry_run", e.opts.DryRun))
	}
	return d, nil
}

func (e *Engine) facts(ctx context.Context, u models.User, now time.Time, teacherRoles []int64) (Facts, error) {
	f := Facts{Age: now.Sub(time.Unix(u.LastConnection(), 0))}

	teacher, err := roles.New(e.db).Holds(ctx, u.ID, teacherRoles)
	if err != nil {
		return f, fmt.Errorf("teacher roles: %w", err)
	}
	f.Teacher = teacher

	refs, err := references.New(e.db).HasReferences(ctx, u.ID)
	if err != nil {
		return f, fmt.Errorf("references: %w", err)
	}
	f.HasReferences = refs

	// The private spaces outlive their members.
	n, err := enrolments.New(e.db).CountForUser(ctx, u.ID, e.policy.ProtectedPrefix)
	if err != nil {
		return f, fmt.Errorf("enrolments: %w", err)
	}
	f.Enrolled = n > 0
	return f, nil
}

// retireCourses exports then deletes the courses u owns alone. It reports
// blocked when one of them could not be retired, in which case u must be
// kept.
func (e *Engine) retireCourses(ctx context.Context, u models.User, now time.Time, ownerRoles []int64, sum *Summary) (bool, error) {
	cs := courses.New(e.db)
	owned, err := cs.OwnedBy(ctx, u.ID, ownerRoles)
	if err != nil {
		return false, fmt.Errorf("owned courses: %w", err)
	}

	blocked := false
	for _, c := range owned {
		log := e.logger.With(zap.String("uid", u.Username), zap.Int64("course_id", c.ID))

		if e.policy.ProtectedPrefix != "" && strings.HasPrefix(c.IDNumber, e.policy.ProtectedPrefix) {
			continue
		}
		others, err := cs.OtherOwners(ctx, c.ID, u.ID, ownerRoles)
		if err != nil {
			return blocked, fmt.Errorf("course %d owners: %w", c.ID, err)
		}
		if others > 0 {
			continue
		}
		if now.Sub(time.Unix(c.TimeModified, 0)) < e.policy.BackupDelay {
			log.Info("course modified recently, owner kept")
			blocked = true
			continue
		}
		if e.opts.DryRun {
			log.Info("course would be retired", zap.Bool("dry_run", true))
			continue
		}

		archive, err := e.exporter.Export(ctx, c.ID)
		if err != nil {
			log.Warn("course backup failed, owner kept", zap.Error(err))
			e.opts.Audit.CourseBackupFailed(ctx, u.Username, c.ID, err)
			sum.Errors++
			blocked = true
			continue
		}
		err = txn.Run(ctx, e.db, func(tx *gorm.DB) error {
			return courses.New(tx).Delete(ctx, c.ID)
		})
		if err != nil {
			return blocked, fmt.Errorf("delete course %d: %w", c.ID, err)
		}
		e.opts.Audit.CourseRetired(ctx, u.Username, c.ID, archive)
		sum.CoursesRetired++
		log.Info("course retired", zap.String("archive", archive))
	}
	return blocked, nil
}
