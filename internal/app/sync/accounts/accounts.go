// Package accounts upserts the LMS side of a directory partition: the
// institution category and private space, then each person's account,
// profile data and institution-scoped rights.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/categories"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/courses"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/enrolments"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/hierarchy"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/profilefields"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/roles"
	userstore "github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/users"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/pass"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/htmlsanitize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/metrics"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config controls how directory records become LMS entities.
type Config struct {
	Auth     string // auth method of synchronized accounts
	Lang     string
	Country  string
	Timezone string

	ProfileField     string // short name of the custom field holding the home institution
	ProfileFieldName string

	ForumPrefix string // idnumber and short name prefix of private spaces
	ForumName   string // full name template of private spaces, %s is the category name

	CreatorRole      string // granted to teachers on their institution category
	TeacherRole      string // granted to teachers in the private space
	ManagerRole      string // granted to directors on their institution category
	DirectorProfiles []string

	Groupings models.Groupings
}

// DefaultConfig returns the settings used when the configuration file is silent.
func DefaultConfig() Config {
	return Config{
		Auth:             "cas",
		Lang:             "fr",
		Country:          "FR",
		Timezone:         "Europe/Paris",
		ProfileField:     "institution",
		ProfileFieldName: "Etablissement",
		ForumPrefix:      "ZONE-PRIVEE-",
		ForumName:        "Zone privée - %s",
		CreatorRole:      "coursecreator",
		TeacherRole:      "editingteacher",
		ManagerRole:      "manager",
		DirectorProfiles: []string{"National_DIR"},
	}
}

// Space is the LMS structure of one institution category.
type Space struct {
	Key           string   // category idnumber
	Codes         []string // institutions sharing the category
	Category      *models.CourseCategory
	Context       *models.Context // category context
	Course        *models.Course  // private space
	CourseContext *models.Context
	Enrol         *models.Enrol // manual method of the private space
}

// Syncer writes one partition. It must be built on the partition's
// transaction.
type Syncer struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	users      *userstore.Store
	categories *categories.Store
	courses    *courses.Store
	paths      *hierarchy.Store
	roles      *roles.Store
	enrolments *enrolments.Store
	profiles   *profilefields.Store

	fieldID int64
	roleIDs map[string]int64
}

// New returns a Syncer writing through db.
func New(db *gorm.DB, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Syncer {
	return &Syncer{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		users:      userstore.New(db),
		categories: categories.New(db),
		courses:    courses.New(db),
		paths:      hierarchy.New(db),
		roles:      roles.New(db),
		enrolments: enrolments.New(db),
		profiles:   profilefields.New(db),
		roleIDs:    make(map[string]int64),
	}
}

func (s *Syncer) roleID(ctx context.Context, shortName string) (int64, error) {
	if id, ok := s.roleIDs[shortName]; ok {
		return id, nil
	}
	id, err := s.roles.IDByShortName(ctx, shortName)
	if err != nil {
		return 0, err
	}
	s.roleIDs[shortName] = id
	return id, nil
}

// Institution upserts the category and private space of inst. A grouped
// institution shares the category of its grouping, whose description lists
// every member code.
func (s *Syncer) Institution(ctx context.Context, p *pass.Pass, inst models.Institution) (*Space, error) {
	code := normalize.Code(inst.Code)
	name := inst.Name
	space := &Space{Key: code, Codes: []string{code}}
	if g, ok := s.cfg.Groupings.Of(code); ok {
		space.Key = g.Key
		space.Codes = g.Codes
		if g.Name != "" {
			name = g.Name
		}
	}
	name = htmlsanitize.Text(normalize.Name(name))
	if name == "" {
		name = space.Key
	}
	description := htmlsanitize.Text("UAI " + strings.Join(space.Codes, ", "))

	now := p.Unix()
	cat, outcome, err := s.categories.Upsert(ctx, categories.Spec{
		IDNumber:    space.Key,
		Name:        name,
		Description: description,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("institution %s: %w", code, err)
	}
	p.Add("categories_"+outcome.String(), 1)
	space.Category = cat

	if space.Context, err = s.paths.CategoryContext(ctx, cat.ID); err != nil {
		return nil, err
	}
	if space.Context == nil {
		return nil, fmt.Errorf("institution %s: %w: %d", code, courses.ErrNoCategoryContext, cat.ID)
	}

	idNumber := s.cfg.ForumPrefix + space.Key
	course, outcome, err := s.courses.Upsert(ctx, courses.Spec{
		IDNumber:  idNumber,
		ShortName: idNumber,
		FullName:  fmt.Sprintf(s.cfg.ForumName, name),
		Category:  cat.ID,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("institution %s private space: %w", code, err)
	}
	p.Add("spaces_"+outcome.String(), 1)
	space.Course = course

	if space.CourseContext, err = s.paths.CourseContext(ctx, course.ID); err != nil {
		return nil, err
	}
	teacherRole, err := s.roleID(ctx, s.cfg.TeacherRole)
	if err != nil {
		return nil, err
	}
	if space.Enrol, err = s.enrolments.EnsureManual(ctx, course.ID, teacherRole, now); err != nil {
		return nil, err
	}

	s.logger.Debug("institution synchronized",
		zap.String("partition", p.Key),
		zap.String("category", space.Key),
		zap.Int64("category_id", cat.ID),
		zap.Int64("course_id", course.ID))
	return space, nil
}

// Person upserts the account of person and, when space is given, the rights
// it holds in that space. Ambiguous lookups are recorded on p and return a
// nil user with a nil error.
func (s *Syncer) Person(ctx context.Context, p *pass.Pass, person models.Person, space *Space) (*models.User, error) {
	id := person.Ident()
	log := s.logger.With(zap.String("partition", p.Key), zap.String("uid", id.UID))
	now := p.Unix()

	user, outcome, err := s.users.Upsert(ctx, userstore.Spec{
		Username:  id.UID,
		Auth:      s.cfg.Auth,
		FirstName: normalize.Name(id.GivenName),
		LastName:  normalize.Name(id.FamilyName),
		Email:     normalize.Email(id.Mail),
		Lang:      s.cfg.Lang,
		Country:   s.cfg.Country,
		Timezone:  s.cfg.Timezone,
	}, now)
	if errors.Is(err, moodle.ErrAmbiguous) {
		log.Warn("account skipped", zap.Error(err))
		p.Fail("person", id.UID, err)
		s.metrics.Account(metrics.OutcomeFailed)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Add("accounts_"+outcome.String(), 1)
	s.metrics.Account(outcome.String())
	if outcome != moodle.Unchanged {
		log.Info("account "+outcome.String(), zap.Int64("user_id", user.ID))
	}

	if outcome == moodle.Created {
		sys, err := s.paths.SystemContext(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := s.paths.InsertContext(ctx, models.ContextUser, user.ID, sys); err != nil {
			return nil, err
		}
	}

	if err := s.profile(ctx, p, user.ID, id.HomeInstitution); err != nil {
		return nil, err
	}

	if space == nil {
		return user, nil
	}
	if err := s.grant(ctx, p, person, user.ID, space); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Syncer) profile(ctx context.Context, p *pass.Pass, userID int64, home string) error {
	if s.cfg.ProfileField == "" {
		return nil
	}
	if s.fieldID == 0 {
		id, err := s.profiles.EnsureField(ctx, s.cfg.ProfileField, s.cfg.ProfileFieldName)
		if err != nil {
			return err
		}
		s.fieldID = id
	}
	changed, err := s.profiles.Set(ctx, userID, s.fieldID, normalize.Code(home))
	if err != nil {
		return err
	}
	if changed {
		p.Add("profiles_updated", 1)
	}
	return nil
}

// grant gives teachers the creator role and a private-space enrolment, and
// directors the manager role, on a space the person is attached to.
func (s *Syncer) grant(ctx context.Context, p *pass.Pass, person models.Person, userID int64, space *Space) error {
	id := person.Ident()
	attached := false
	for _, code := range space.Codes {
		if id.AttachedTo(code) {
			attached = true
			break
		}
	}
	if !attached {
		return nil
	}

	type grant struct {
		role      string
		contextID int64
	}
	var grants []grant
	if person.Kind() == models.KindTeacher {
		grants = append(grants,
			grant{s.cfg.CreatorRole, space.Context.ID},
			grant{s.cfg.TeacherRole, space.CourseContext.ID})
		added, err := s.enrolments.Enrol(ctx, space.Enrol.ID, userID, p.Unix())
		if err != nil {
			return err
		}
		if added {
			p.Add("enrolments_added", 1)
		}
	}
	if len(s.cfg.DirectorProfiles) > 0 && id.HasProfile(s.cfg.DirectorProfiles...) {
		grants = append(grants, grant{s.cfg.ManagerRole, space.Context.ID})
	}

	for _, g := range grants {
		roleID, err := s.roleID(ctx, g.role)
		if err != nil {
			return err
		}
		added, err := s.roles.Assign(ctx, roleID, g.contextID, userID, p.Unix())
		if err != nil {
			return err
		}
		if added {
			p.Add("roles_assigned", 1)
		}
	}
	return nil
}
