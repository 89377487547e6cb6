// Package cohorts reconciles LMS cohort membership with the membership the
// directory implies.
//
// For every strategy the reconciler compares the desired groups with the
// cohorts already carrying the strategy's idnumber prefix:
//   - desired members missing from a cohort are added;
//   - members no longer desired are removed (attrition);
//   - a managed cohort whose key vanished from the directory is dissolved:
//     all its members are removed and the driver deletes it once empty.
//
// Members held through Hold are never removed.
package cohorts

import (
	"context"
	"errors"
	"sort"

	cohortstore "github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/cohorts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	userstore "github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/users"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/pass"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/metrics"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result counts the changes of one reconciliation.
type Result struct {
	Created   int // cohorts created
	Added     int // memberships added
	Removed   int // memberships removed
	Dissolved int // cohorts whose key vanished
	Skipped   int // desired members without an account
	Held      int // memberships kept for held members
}

// Merge adds o to r.
func (r *Result) Merge(o Result) {
	r.Created += o.Created
	r.Added += o.Added
	r.Removed += o.Removed
	r.Dissolved += o.Dissolved
	r.Skipped += o.Skipped
	r.Held += o.Held
}

// Reconciler applies strategies through the cohort store. Build it on the
// partition's transaction.
type Reconciler struct {
	cohorts *cohortstore.Store
	users   *userstore.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	held    []string
}

func New(db *gorm.DB, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		cohorts: cohortstore.New(db),
		users:   userstore.New(db),
		logger:  logger,
		metrics: m,
	}
}

// Hold protects the memberships of usernames whose directory entry could
// not be read. Their absence from a snapshot is not attrition.
func (r *Reconciler) Hold(usernames []string) {
	r.held = append(r.held, usernames...)
}

// Reconcile makes the cohorts of strategy in contextID match the groups it
// derives from people, a full snapshot of the strategy's scope.
func (r *Reconciler) Reconcile(ctx context.Context, p *pass.Pass, contextID int64, s Strategy, people []models.Person) (Result, error) {
	var res Result
	groups := s.Groups(people)

	ids, err := r.resolve(ctx, groups)
	if err != nil {
		return res, err
	}
	held, err := r.heldIDs(ctx)
	if err != nil {
		return res, err
	}

	desired := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		desired[g.IDNumber] = struct{}{}
		gr, err := r.reconcileGroup(ctx, p, contextID, g, ids, held)
		if err != nil {
			return res, err
		}
		res.Merge(gr)
	}

	existing, err := r.cohorts.ListByIDNumberPrefix(ctx, s.Prefix())
	if err != nil {
		return res, err
	}
	for _, c := range existing {
		if _, ok := desired[c.IDNumber]; ok {
			continue
		}
		removed, kept, err := r.dissolve(ctx, c, held)
		if err != nil {
			return res, err
		}
		res.Dissolved++
		res.Removed += removed
		res.Held += kept
		r.logger.Info("cohort dissolved",
			zap.String("partition", p.Key),
			zap.String("cohort", c.IDNumber),
			zap.Int("removed", removed))
	}

	r.record(p, res)
	return res, nil
}

// resolve maps every desired username to its account id.
func (r *Reconciler) resolve(ctx context.Context, groups []Group) (map[string]int64, error) {
	seen := make(map[string]struct{})
	var usernames []string
	for _, g := range groups {
		for _, u := range g.Members {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				usernames = append(usernames, u)
			}
		}
	}
	return r.users.IDsByUsername(ctx, usernames)
}

func (r *Reconciler) heldIDs(ctx context.Context) (map[int64]struct{}, error) {
	if len(r.held) == 0 {
		return nil, nil
	}
	byName, err := r.users.IDsByUsername(ctx, r.held)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(byName))
	for _, id := range byName {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *Reconciler) reconcileGroup(ctx context.Context, p *pass.Pass, contextID int64, g Group, ids map[string]int64, held map[int64]struct{}) (Result, error) {
	var res Result
	log := r.logger.With(zap.String("partition", p.Key), zap.String("cohort", g.IDNumber))

	want := make(map[int64]struct{}, len(g.Members))
	for _, username := range g.Members {
		id, ok := ids[username]
		if !ok {
			res.Skipped++
			log.Warn("cohort member has no account", zap.String("uid", username))
			continue
		}
		want[id] = struct{}{}
	}
	if len(want) == 0 {
		// Cohorts are only created with at least one member.
		existing, err := r.cohorts.GetByIDNumber(ctx, g.IDNumber)
		if err != nil || existing == nil {
			return res, err
		}
	}

	c, outcome, err := r.cohorts.Ensure(ctx, cohortstore.Spec{
		ContextID:   contextID,
		IDNumber:    g.IDNumber,
		Name:        g.Name,
		Description: g.Description,
	}, p.Unix())
	if errors.Is(err, moodle.ErrAmbiguous) || errors.Is(err, cohortstore.ErrNameTaken) {
		log.Warn("cohort skipped", zap.Error(err))
		p.Fail("cohort", g.IDNumber, err)
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if outcome == moodle.Created {
		res.Created++
		log.Info("cohort created", zap.String("name", g.Name), zap.Int64("cohort_id", c.ID))
	}

	actual, err := r.cohorts.Members(ctx, c.ID)
	if err != nil {
		return res, err
	}

	for _, id := range sortedIDs(want) {
		if _, ok := actual[id]; ok {
			continue
		}
		added, err := r.cohorts.AddMember(ctx, c.ID, id, p.Unix())
		if err != nil {
			return res, err
		}
		if added {
			res.Added++
		}
	}

	for _, id := range sortedIDs(actual) {
		if _, ok := want[id]; ok {
			continue
		}
		if _, ok := held[id]; ok {
			res.Held++
			continue
		}
		removed, err := r.cohorts.RemoveMember(ctx, c.ID, id)
		if err != nil {
			return res, err
		}
		if removed {
			res.Removed++
		}
	}

	if res.Added > 0 || res.Removed > 0 {
		log.Debug("cohort reconciled", zap.Int("added", res.Added), zap.Int("removed", res.Removed))
	}
	return res, nil
}

func (r *Reconciler) dissolve(ctx context.Context, c models.Cohort, held map[int64]struct{}) (removed, kept int, err error) {
	members, err := r.cohorts.Members(ctx, c.ID)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range sortedIDs(members) {
		if _, ok := held[id]; ok {
			kept++
			continue
		}
		ok, err := r.cohorts.RemoveMember(ctx, c.ID, id)
		if err != nil {
			return removed, kept, err
		}
		if ok {
			removed++
		}
	}
	return removed, kept, nil
}

func (r *Reconciler) record(p *pass.Pass, res Result) {
	p.Add("cohorts_created", res.Created)
	p.Add("cohort_members_added", res.Added)
	p.Add("cohort_members_removed", res.Removed)
	p.Add("cohorts_dissolved", res.Dissolved)
	p.Add("cohort_members_skipped", res.Skipped)
	p.Add("cohort_members_held", res.Held)

	r.metrics.CohortChange(metrics.ChangeAdded, res.Added)
	r.metrics.CohortChange(metrics.ChangeRemoved, res.Removed)
	r.metrics.CohortChange(metrics.ChangeDissolved, res.Dissolved)
	r.metrics.CohortChange(metrics.ChangeSkipped, res.Skipped)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
