// Package driver runs a synchronization: one pass per institution and per
// named filter stream, then the global cleanups and the retention pass.
//
// Each partition pass runs in one transaction. Its checkpoint is marked
// and flushed only after the commit, so a failed or interrupted pass is
// replayed in full by the next run.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/directory"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/retention"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/checkpoints"
	cohortstore "github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/cohorts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/enrolments"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/hierarchy"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/accounts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/cohorts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/pass"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/rights"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/auditlog"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/metrics"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/timeouts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/txn"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mode selects what a run does.
type Mode string

const (
	ModeSync       Mode = "sync"
	ModeRetention  Mode = "retention"
	ModeAll        Mode = "all"
	ModeCheckPaths Mode = "check-paths"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSync, ModeRetention, ModeAll, ModeCheckPaths:
		return true
	}
	return false
}

// Syncs reports whether the partitions are synchronized in mode m.
func (m Mode) Syncs() bool { return m == ModeSync || m == ModeAll }

// Retains reports whether the retention pass runs in mode m.
func (m Mode) Retains() bool { return m == ModeRetention || m == ModeAll }

// StreamKeyPrefix starts the checkpoint key of filter streams.
const StreamKeyPrefix = "filter:"

// ErrUnknownInstitution is returned when the directory does not know a
// configured institution code. It is not retried.
var ErrUnknownInstitution = errors.New("institution not found in the directory")

// errDryRun rolls back a dry-run pass.
var errDryRun = errors.New("dry run")

// Stream is a named directory filter whose people form one cohort in the
// system context.
type Stream struct {
	Name        string
	Filter      string
	CohortName  string
	Description string
}

// Config controls a run.
type Config struct {
	Mode         Mode
	Institutions []string
	Streams      []Stream
	Accounts     accounts.Config // carries the groupings
	Templates    cohorts.Templates

	// DryRun runs every pass and rolls it back; checkpoints are not moved.
	DryRun bool

	Retries        int
	RetryBaseDelay time.Duration
	MetricsPushURL string

	// FullResync lists partition keys (or FullResyncAll) whose checkpoint is
	// reset by the first run, so that every record is fetched again.
	FullResync []string
}

// FullResyncAll in Config.FullResync resets every partition.
const FullResyncAll = "all"

// Deps are the collaborators of a Driver. Retention may be nil when the
// mode does not need it; Metrics and Audit may be nil.
type Deps struct {
	DB          *gorm.DB
	Directory   directory.Reader
	Checkpoints *checkpoints.Store
	Retention   *retention.Engine
	Metrics     *metrics.Metrics
	Audit       *auditlog.Logger
	Logger      *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Summary is the outcome of one run.
type Summary struct {
	RunID        string
	Partitions   int
	Failed       int
	RecordErrors int
	Counts       map[string]int
	Retention    *retention.Summary
	Paths        int // inconsistent materialized paths
	Errors       int
}

// ExitCode is 0 on success and the error count, capped at 255, otherwise.
func (s Summary) ExitCode() int {
	return min(s.Errors, 255)
}

// Driver runs synchronizations.
type Driver struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	// Requested full resyncs; a partition leaves the request once it
	// succeeded.
	resync    map[string]struct{}
	resyncAll bool
	resynced  map[string]struct{}
}

// New returns a Driver.
func New(cfg Config, deps Deps) *Driver {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	d := &Driver{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger,
		resync:   make(map[string]struct{}),
		resynced: make(map[string]struct{}),
	}
	for _, key := range cfg.FullResync {
		key = strings.TrimSpace(key)
		switch {
		case key == "":
		case strings.EqualFold(key, FullResyncAll):
			d.resyncAll = true
		case strings.HasPrefix(key, StreamKeyPrefix):
			d.resync[key] = struct{}{}
		default:
			d.resync[normalize.Code(key)] = struct{}{}
		}
	}
	return d
}

// pendingResync reports whether key must be fetched in full.
func (d *Driver) pendingResync(key string) bool {
	if _, done := d.resynced[key]; done {
		return false
	}
	_, ok := d.resync[key]
	return ok || d.resyncAll
}

// resyncDone records that the full resync of key completed.
func (d *Driver) resyncDone(key string) {
	d.resynced[key] = struct{}{}
}

// Run executes one run according to the configured mode. Failures are
// counted in the summary; they never stop the run.
func (d *Driver) Run(ctx context.Context) Summary {
	sum := Summary{RunID: uuid.NewString(), Counts: make(map[string]int)}
	audit := d.deps.Audit.ForRun(sum.RunID)
	log := d.log.With(zap.String("run_id", sum.RunID), zap.String("mode", string(d.cfg.Mode)))
	log.Info("run started", zap.Bool("dry_run", d.cfg.DryRun))

	if d.cfg.Mode.Syncs() {
		for _, code := range d.cfg.Institutions {
			code := normalize.Code(code)
			d.partition(ctx, audit, code, &sum, func(ctx context.Context, p *pass.Pass, since time.Time) error {
				return d.institution(ctx, p, code, since)
			})
		}
		for _, s := range d.cfg.Streams {
			d.partition(ctx, audit, StreamKeyPrefix+s.Name, &sum, func(ctx context.Context, p *pass.Pass, since time.Time) error {
				return d.stream(ctx, p, s, since)
			})
		}
		d.cleanup(ctx, &sum)
	}

	if d.cfg.Mode.Retains() {
		d.retention(ctx, &sum)
	}

	if d.cfg.Mode == ModeCheckPaths {
		d.checkPaths(ctx, &sum)
	}

	d.deps.Metrics.RunCompleted(d.deps.Clock())
	if d.cfg.MetricsPushURL != "" {
		if err := d.deps.Metrics.Push(ctx, d.cfg.MetricsPushURL); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
	}
	audit.RunCompleted(ctx, string(d.cfg.Mode), sum.Errors, sum.Counts)

	log.Info("run completed",
		zap.Int("partitions", sum.Partitions),
		zap.Int("updated", sum.Counts["accounts_created"]+sum.Counts["accounts_updated"]),
		zap.Int("not_found", sum.Counts["not_found"]),
		zap.Int("anonymized", sum.Counts["anonymized"]),
		zap.Int("deleted", sum.Counts["deleted"]),
		zap.Int("errors", sum.Errors))
	return sum
}

type passFunc func(ctx context.Context, p *pass.Pass, since time.Time) error

// partition runs fn with retries and moves the checkpoint of key on success.
func (d *Driver) partition(ctx context.Context, audit *auditlog.Logger, key string, sum *Summary, fn passFunc) {
	sum.Partitions++
	log := d.log.With(zap.String("partition", key))

	full := d.pendingResync(key)
	if full && !d.cfg.DryRun {
		// The reset is persisted by the next flush, so a failed resync is
		// retried in full by the next run.
		d.deps.Checkpoints.Reset(key)
	}
	since, _ := d.deps.Checkpoints.Get(key)
	if full {
		since = time.Time{}
		log.Info("full resync")
	}
	now := d.deps.Clock()

	var p *pass.Pass
	attempts := 0
	op := func() error {
		attempts++
		p = pass.New(key, now)
		pctx, cancel := context.WithTimeout(ctx, timeouts.Partition())
		defer cancel()

		err := fn(pctx, p, since)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrUnknownInstitution) {
			return backoff.Permanent(err)
		}
		log.Warn("partition attempt failed",
			zap.Int("attempt", attempts),
			zap.Bool("transient", txn.IsTransient(err)),
			zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	if d.cfg.RetryBaseDelay > 0 {
		b.InitialInterval = d.cfg.RetryBaseDelay
	}
	retries := max(d.cfg.Retries, 0)
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	if err != nil {
		sum.Failed++
		sum.Errors++
		d.deps.Metrics.Partition(metrics.ResultFailed)
		audit.PartitionFailed(ctx, key, attempts, err)
		log.Error("partition failed", zap.Int("attempts", attempts), zap.Error(err))
		return
	}

	for _, re := range p.Errors() {
		log.Warn("record skipped", zap.String("kind", re.Kind), zap.String("key", re.Key), zap.Error(re.Err))
	}
	sum.RecordErrors += len(p.Errors())
	sum.Errors += len(p.Errors())
	counts := p.Counts()
	for k, v := range counts {
		sum.Counts[k] += v
	}

	if !d.cfg.DryRun {
		if err := d.deps.Checkpoints.Mark(key, p.Now); err != nil {
			sum.Errors++
			log.Error("checkpoint not marked", zap.Error(err))
		} else if err := d.deps.Checkpoints.Flush(); err != nil {
			sum.Errors++
			log.Error("checkpoint not flushed", zap.Error(err))
		}
	}
	if full {
		d.resyncDone(key)
	}
	d.deps.Metrics.Partition(metrics.ResultSucceeded)
	audit.PartitionSynced(ctx, key, counts)
	p.Logger(d.log).Info("partition synced", p.Fields()...)
}

// run executes fn in one transaction; in dry-run mode the transaction is
// rolled back once fn succeeds.
func (d *Driver) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := txn.Run(ctx, d.deps.DB, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		if d.cfg.DryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return nil
	}
	return err
}

// institution is the pass of one institution: accounts first, then the
// cohorts, then the revocation of rights, all reading freshly upserted ids.
func (d *Driver) institution(ctx context.Context, p *pass.Pass, code string, since time.Time) error {
	insts, err := d.deps.Directory.Institutions(ctx, directory.InstitutionQuery{Codes: []string{code}})
	if err != nil {
		return fmt.Errorf("read institution: %w", err)
	}
	if len(insts) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownInstitution, code)
	}
	inst := insts[0]

	changed, err := d.deps.Directory.People(ctx, directory.Query{Institution: code, Since: since})
	if err != nil {
		return fmt.Errorf("read changed people: %w", err)
	}
	snapshot, err := d.deps.Directory.People(ctx, directory.Query{Institution: code})
	if err != nil {
		return fmt.Errorf("read people: %w", err)
	}

	log := p.Logger(d.log)
	return d.run(ctx, func(tx *gorm.DB) error {
		acc := accounts.New(tx, d.cfg.Accounts, log, d.deps.Metrics)
		space, err := acc.Institution(ctx, p, inst)
		if err != nil {
			return fmt.Errorf("institution %s: %w", code, err)
		}

		for _, r := range changed.Rejected {
			p.Fail("entry", r.DN, r.Err)
		}
		type teacher struct {
			userID int64
			t      *models.Teacher
		}
		var teachers []teacher
		for _, person := range changed.People {
			u, err := acc.Person(ctx, p, person, space)
			if err != nil {
				return fmt.Errorf("person %s: %w", person.Ident().UID, err)
			}
			if t, ok := person.(*models.Teacher); ok && u != nil {
				teachers = append(teachers, teacher{u.ID, t})
			}
		}

		rec := cohorts.New(tx, log, d.deps.Metrics)
		rec.Hold(snapshot.RejectedUIDs())
		for _, s := range d.strategies(inst, len(space.Codes) > 1) {
			if _, err := rec.Reconcile(ctx, p, space.Context.ID, s, snapshot.People); err != nil {
				return fmt.Errorf("cohorts %s: %w", s.Prefix(), err)
			}
		}

		rs := rights.New(tx, rights.Config{
			CreatorRole:  d.cfg.Accounts.CreatorRole,
			ForumPrefix:  d.cfg.Accounts.ForumPrefix,
			Institutions: d.cfg.Institutions,
			Groupings:    d.cfg.Accounts.Groupings,
		}, log)
		for _, t := range teachers {
			if _, err := rs.Teacher(ctx, p, t.userID, t.t); err != nil {
				return fmt.Errorf("rights %s: %w", t.t.UID, err)
			}
		}
		return nil
	})
}

// strategies returns the cohort strategies of one institution. Names carry
// the institution code when the category is shared by a grouping.
func (d *Driver) strategies(inst models.Institution, grouped bool) []cohorts.Strategy {
	code := normalize.Code(inst.Code)
	suffix := ""
	if grouped {
		suffix = " (" + code + ")"
	}
	t := d.cfg.Templates
	return []cohorts.Strategy{
		cohorts.ClassStrategy{Institution: code, Template: t.ClassStudents, Suffix: suffix},
		cohorts.ClassStrategy{Institution: code, Teachers: true, Template: t.ClassTeachers, Suffix: suffix},
		cohorts.LevelStrategy{Institution: code, Template: t.Level, Suffix: suffix},
		cohorts.EstablishmentStrategy{Institution: code, Name: inst.Name, Template: t.Establishment, Suffix: suffix},
	}
}

// stream is the pass of a filter stream: accounts, then one cohort in the
// system context.
func (d *Driver) stream(ctx context.Context, p *pass.Pass, s Stream, since time.Time) error {
	changed, err := d.deps.Directory.People(ctx, directory.Query{Filter: s.Filter, Since: since})
	if err != nil {
		return fmt.Errorf("read changed people: %w", err)
	}
	snapshot, err := d.deps.Directory.People(ctx, directory.Query{Filter: s.Filter})
	if err != nil {
		return fmt.Errorf("read people: %w", err)
	}

	log := p.Logger(d.log)
	return d.run(ctx, func(tx *gorm.DB) error {
		acc := accounts.New(tx, d.cfg.Accounts, log, d.deps.Metrics)
		for _, r := range changed.Rejected {
			p.Fail("entry", r.DN, r.Err)
		}
		for _, person := range changed.People {
			if _, err := acc.Person(ctx, p, person, nil); err != nil {
				return fmt.Errorf("person %s: %w", person.Ident().UID, err)
			}
		}

		sys, err := hierarchy.New(tx).SystemContext(ctx)
		if err != nil {
			return err
		}
		name := s.CohortName
		if name == "" {
			name = s.Name
		}
		strategy := cohorts.FilterStrategy{Stream: s.Name, Name: name, Description: s.Description}
		rec := cohorts.New(tx, log, d.deps.Metrics)
		rec.Hold(snapshot.RejectedUIDs())
		if _, err := rec.Reconcile(ctx, p, sys.ID, strategy, snapshot.People); err != nil {
			return fmt.Errorf("cohorts %s: %w", strategy.Prefix(), err)
		}
		return nil
	})
}

// cleanup deletes the cohorts left empty and purges orphan enrolments.
func (d *Driver) cleanup(ctx context.Context, sum *Summary) {
	var deleted []models.Cohort
	var purged int64
	err := d.run(ctx, func(tx *gorm.DB) error {
		var err error
		if deleted, err = cohortstore.New(tx).DeleteEmpty(ctx); err != nil {
			return fmt.Errorf("delete empty cohorts: %w", err)
		}
		if purged, err = enrolments.New(tx).PurgeOrphans(ctx); err != nil {
			return fmt.Errorf("purge orphan enrolments: %w", err)
		}
		return nil
	})
	if err != nil {
		sum.Errors++
		d.log.Error("cleanup failed", zap.Error(err))
		return
	}
	for _, c := range deleted {
		d.log.Info("empty cohort deleted", zap.String("cohort", c.IDNumber), zap.Int64("cohort_id", c.ID))
	}
	sum.Counts["cohorts_deleted"] += len(deleted)
	sum.Counts["enrolments_purged"] += int(purged)
	d.deps.Metrics.CohortChange(metrics.ChangeDeleted, len(deleted))
}

func (d *Driver) retention(ctx context.Context, sum *Summary) {
	if d.deps.Retention == nil {
		sum.Errors++
		d.log.Error("retention engine not configured")
		return
	}
	rctx, cancel := context.WithTimeout(ctx, timeouts.Retention())
	defer cancel()

	rs, err := d.deps.Retention.Run(rctx, d.deps.Clock())
	if err != nil {
		sum.Errors++
		d.log.Error("retention pass failed", zap.Error(err))
		return
	}
	sum.Retention = &rs
	sum.Errors += rs.Errors
	for k, v := range rs.Counts() {
		if k == "errors" {
			continue
		}
		sum.Counts[k] += v
	}
}

func (d *Driver) checkPaths(ctx context.Context, sum *Summary) {
	found, err := hierarchy.New(d.deps.DB).CheckPaths(ctx)
	if err != nil {
		sum.Errors++
		d.log.Error("path check failed", zap.Error(err))
		return
	}
	for _, inc := range found {
		d.log.Warn("inconsistent path",
			zap.String("kind", inc.Kind),
			zap.Int64("id", inc.ID),
			zap.String("path", inc.Path),
			zap.String("expected", inc.Expected))
	}
	sum.Paths = len(found)
	sum.Errors += len(found)
	d.log.Info("path check completed", zap.Int("inconsistent", len(found)))
}
