// Package rights revokes the institution-scoped rights a teacher holds in
// the LMS but is no longer authorized for by the directory.
package rights

import (
	"context"
	"strings"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/categories"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/courses"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/enrolments"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/hierarchy"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/roles"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/pass"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config names the rights the synchronizer manages.
type Config struct {
	CreatorRole  string
	ForumPrefix  string
	Institutions []string // managed institution codes
	Groupings    models.Groupings
}

// Result counts revocations.
type Result struct {
	Roles      int
	Enrolments int
	Exempt     bool
}

// Synchronizer is built on the partition's transaction.
type Synchronizer struct {
	cfg     Config
	managed map[string]struct{}
	logger  *zap.Logger

	roles      *roles.Store
	categories *categories.Store
	courses    *courses.Store
	enrolments *enrolments.Store
	paths      *hierarchy.Store
}

func New(db *gorm.DB, cfg Config, logger *zap.Logger) *Synchronizer {
	// A regrouped institution keeps its former category until cleaned up;
	// rights on it stay managed under the bare code.
	managed := make(map[string]struct{}, 2*len(cfg.Institutions))
	for _, code := range cfg.Institutions {
		code = normalize.Code(code)
		managed[code] = struct{}{}
		managed[cfg.Groupings.KeyOf(code)] = struct{}{}
	}
	return &Synchronizer{
		cfg:        cfg,
		managed:    managed,
		logger:     logger,
		roles:      roles.New(db),
		categories: categories.New(db),
		courses:    courses.New(db),
		enrolments: enrolments.New(db),
		paths:      hierarchy.New(db),
	}
}

// Authorized returns the category keys a teacher may hold rights on.
func (s *Synchronizer) Authorized(t *models.Teacher) map[string]struct{} {
	keys := make(map[string]struct{}, len(t.Institutions)+1)
	keys[s.cfg.Groupings.KeyOf(normalize.Code(t.HomeInstitution))] = struct{}{}
	for _, code := range t.Institutions {
		keys[s.cfg.Groupings.KeyOf(normalize.Code(code))] = struct{}{}
	}
	return keys
}

// Exempt reports whether the teacher belongs to a grouped institution.
// Grouped institutions share their rights, so nothing is revoked.
func (s *Synchronizer) Exempt(t *models.Teacher) bool {
	codes := append([]string{t.HomeInstitution}, t.Institutions...)
	for _, code := range codes {
		if _, ok := s.cfg.Groupings.Of(normalize.Code(code)); ok {
			return true
		}
	}
	return false
}

// Teacher revokes, for account userID, the creator-role grants on managed
// institution categories and the private-space enrolments outside t's
// authorized scope.
func (s *Synchronizer) Teacher(ctx context.Context, p *pass.Pass, userID int64, t *models.Teacher) (Result, error) {
	var res Result
	log := s.logger.With(zap.String("partition", p.Key), zap.String("uid", t.UID))
	if s.Exempt(t) {
		res.Exempt = true
		return res, nil
	}
	allowed := s.Authorized(t)

	creator, err := s.roles.IDByShortName(ctx, s.cfg.CreatorRole)
	if err != nil {
		return res, err
	}
	grants, err := s.roles.Grants(ctx, userID, []int64{creator}, models.ContextCategory)
	if err != nil {
		return res, err
	}
	for _, g := range grants {
		cat, err := s.categories.GetByID(ctx, g.InstanceID)
		if err != nil {
			return res, err
		}
		if cat == nil || !s.revocable(cat.IDNumber, allowed) {
			continue
		}
		removed, err := s.roles.Unassign(ctx, g.RoleID, g.ContextID, userID)
		if err != nil {
			return res, err
		}
		if removed {
			res.Roles++
			log.Info("creator role revoked", zap.String("category", cat.IDNumber))
		}
	}

	held, err := s.enrolments.ForUser(ctx, userID)
	if err != nil {
		return res, err
	}
	for _, e := range held {
		course, err := s.courses.GetByID(ctx, e.CourseID)
		if err != nil {
			return res, err
		}
		if course == nil || !strings.HasPrefix(course.IDNumber, s.cfg.ForumPrefix) {
			continue
		}
		key := strings.TrimPrefix(course.IDNumber, s.cfg.ForumPrefix)
		if !s.revocable(key, allowed) {
			continue
		}
		if _, err := s.enrolments.Unenrol(ctx, e.EnrolID, userID); err != nil {
			return res, err
		}
		cctx, err := s.paths.CourseContext(ctx, course.ID)
		if err != nil {
			return res, err
		}
		if cctx != nil {
			if _, err := s.roles.UnassignAll(ctx, cctx.ID, userID); err != nil {
				return res, err
			}
		}
		res.Enrolments++
		log.Info("private space enrolment revoked", zap.String("course", course.IDNumber))
	}

	p.Add("roles_revoked", res.Roles)
	p.Add("enrolments_revoked", res.Enrolments)
	return res, nil
}

// revocable reports whether a right on category key is managed here and
// outside the allowed keys.
func (s *Synchronizer) revocable(key string, allowed map[string]struct{}) bool {
	if _, ok := s.managed[key]; !ok {
		return false
	}
	_, ok := allowed[key]
	return !ok
}
