package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// FixtureTime is the creation time stamped on fixture rows.
var FixtureTime = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

// Fixtures provides helper methods for creating LMS test data.
type Fixtures struct {
	db *gorm.DB
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *gorm.DB {
	return f.db
}

func (f *Fixtures) table(name string) *gorm.DB {
	return f.db.Table(moodle.Table(f.db, name))
}

func (f *Fixtures) create(name string, v any) {
	f.t.Helper()
	if err := f.table(name).Create(v).Error; err != nil {
		f.t.Fatalf("failed to create %s row: %v", name, err)
	}
}

// CreateUser creates a synchronized account with the given username.
func (f *Fixtures) CreateUser(username, firstName, lastName string) models.User {
	f.t.Helper()
	return f.CreateUserWith(models.User{
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	})
}

// CreateUserWith creates an account, filling unset LMS defaults.
func (f *Fixtures) CreateUserWith(u models.User) models.User {
	f.t.Helper()
	if u.Auth == "" {
		u.Auth = "cas"
	}
	if u.MnetHostID == 0 {
		u.MnetHostID = 1
	}
	if u.Email == "" {
		u.Email = u.Username + "@example.org"
	}
	if u.Lang == "" {
		u.Lang = "fr"
	}
	if u.TimeCreated == 0 {
		u.TimeCreated = FixtureTime.Unix()
	}
	u.Confirmed = 1
	f.create(moodle.TableUser, &u)
	return u
}

// CreateCategory creates a category and its context under parent (0 for
// top level) with consistent materialized paths.
func (f *Fixtures) CreateCategory(name, idNumber string, parent int64) (models.CourseCategory, models.Context) {
	f.t.Helper()

	parentPath, parentCtxPath, depth := "", fmt.Sprintf("/%d", models.SystemContextID), 1
	if parent != 0 {
		var p models.CourseCategory
		if err := f.table(moodle.TableCategories).Where("id = ?", parent).Take(&p).Error; err != nil {
			f.t.Fatalf("parent category %d: %v", parent, err)
		}
		pctx := f.ContextFor(models.ContextCategory, parent)
		parentPath, parentCtxPath, depth = p.Path, pctx.Path, p.Depth+1
	}

	cat := models.CourseCategory{Name: name, IDNumber: idNumber, Parent: parent, Visible: 1, Depth: depth}
	f.create(moodle.TableCategories, &cat)
	cat.Path = fmt.Sprintf("%s/%d", parentPath, cat.ID)
	f.update(moodle.TableCategories, cat.ID, map[string]any{"path": cat.Path})

	ctx := f.createContext(models.ContextCategory, cat.ID, parentCtxPath)
	return cat, ctx
}

// CreateCourse creates a course and its context in category.
func (f *Fixtures) CreateCourse(category int64, shortName, idNumber string) (models.Course, models.Context) {
	f.t.Helper()

	course := models.Course{
		Category:     category,
		FullName:     shortName,
		ShortName:    shortName,
		IDNumber:     idNumber,
		Format:       "topics",
		Visible:      1,
		TimeCreated:  FixtureTime.Unix(),
		TimeModified: FixtureTime.Unix(),
	}
	f.create(moodle.TableCourse, &course)

	parentPath := fmt.Sprintf("/%d", models.SystemContextID)
	if category != 0 {
		parentPath = f.ContextFor(models.ContextCategory, category).Path
	}
	ctx := f.createContext(models.ContextCourse, course.ID, parentPath)
	return course, ctx
}

// TouchCourse sets the modification time of a course.
func (f *Fixtures) TouchCourse(courseID int64, at time.Time) {
	f.t.Helper()
	f.update(moodle.TableCourse, courseID, map[string]any{"timemodified": at.Unix()})
}

func (f *Fixtures) createContext(level int, instance int64, parentPath string) models.Context {
	f.t.Helper()
	ctx := models.Context{ContextLevel: level, InstanceID: instance}
	f.create(moodle.TableContext, &ctx)
	ctx.Path = fmt.Sprintf("%s/%d", parentPath, ctx.ID)
	ctx.Depth = countSegments(ctx.Path)
	f.update(moodle.TableContext, ctx.ID, map[string]any{"path": ctx.Path, "depth": ctx.Depth})
	return ctx
}

func countSegments(path string) int {
	n := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			n++
		}
	}
	return n
}

func (f *Fixtures) update(name string, id int64, values map[string]any) {
	f.t.Helper()
	if err := f.table(name).Where("id = ?", id).Updates(values).Error; err != nil {
		f.t.Fatalf("failed to update %s %d: %v", name, id, err)
	}
}

// ContextFor loads the context of an instance.
func (f *Fixtures) ContextFor(level int, instance int64) models.Context {
	f.t.Helper()
	var ctx models.Context
	err := f.table(moodle.TableContext).
		Where("contextlevel = ? AND instanceid = ?", level, instance).
		Take(&ctx).Error
	if err != nil {
		f.t.Fatalf("context (%d, %d): %v", level, instance, err)
	}
	return ctx
}

// CreateCohort creates an empty cohort.
func (f *Fixtures) CreateCohort(contextID int64, name, idNumber string) models.Cohort {
	f.t.Helper()
	c := models.Cohort{
		ContextID:    contextID,
		Name:         name,
		IDNumber:     idNumber,
		Visible:      1,
		TimeCreated:  FixtureTime.Unix(),
		TimeModified: FixtureTime.Unix(),
	}
	f.create(moodle.TableCohort, &c)
	return c
}

// AddCohortMember adds userID to cohortID.
func (f *Fixtures) AddCohortMember(cohortID, userID int64) {
	f.t.Helper()
	f.create(moodle.TableCohortMembers, &models.CohortMember{
		CohortID:  cohortID,
		UserID:    userID,
		TimeAdded: FixtureTime.Unix(),
	})
}

// CohortMembers returns the member user ids of a cohort, ascending.
func (f *Fixtures) CohortMembers(cohortID int64) []int64 {
	f.t.Helper()
	var ids []int64
	err := f.table(moodle.TableCohortMembers).
		Where("cohortid = ?", cohortID).
		Order("userid").
		Pluck("userid", &ids).Error
	if err != nil {
		f.t.Fatalf("cohort members of %d: %v", cohortID, err)
	}
	return ids
}

// RoleID returns the id of a seeded role.
func (f *Fixtures) RoleID(shortName string) int64 {
	f.t.Helper()
	var r models.Role
	if err := f.table(moodle.TableRole).Where("shortname = ?", shortName).Take(&r).Error; err != nil {
		f.t.Fatalf("role %q: %v", shortName, err)
	}
	return r.ID
}

// AssignRole grants a role to userID in contextID.
func (f *Fixtures) AssignRole(shortName string, contextID, userID int64) models.RoleAssignment {
	f.t.Helper()
	ra := models.RoleAssignment{
		RoleID:       f.RoleID(shortName),
		ContextID:    contextID,
		UserID:       userID,
		TimeModified: FixtureTime.Unix(),
	}
	f.create(moodle.TableRoleAssignment, &ra)
	return ra
}

// EnrolManual enrols userID in courseID through the manual method (created
// on demand) and assigns the role in the course context.
func (f *Fixtures) EnrolManual(courseID, userID int64, roleShortName string) models.UserEnrolment {
	f.t.Helper()

	roleID := f.RoleID(roleShortName)
	var e models.Enrol
	err := f.table(moodle.TableEnrol).Where("courseid = ? AND enrol = ?", courseID, "manual").Take(&e).Error
	if err != nil {
		e = models.Enrol{Enrol: "manual", CourseID: courseID, RoleID: f.RoleID("student"), TimeCreated: FixtureTime.Unix()}
		f.create(moodle.TableEnrol, &e)
	}

	ue := models.UserEnrolment{EnrolID: e.ID, UserID: userID, TimeCreated: FixtureTime.Unix()}
	f.create(moodle.TableUserEnrolments, &ue)

	ctx := f.ContextFor(models.ContextCourse, courseID)
	f.create(moodle.TableRoleAssignment, &models.RoleAssignment{
		RoleID:    roleID,
		ContextID: ctx.ID,
		UserID:    userID,
	})
	return ue
}

// AddReference records activity of userID in one of the reference tables.
func (f *Fixtures) AddReference(table string, userID int64) {
	f.t.Helper()
	f.create(table, &models.UserReference{UserID: userID})
}

// Count returns the number of rows of an LMS table matching where.
func (f *Fixtures) Count(name string, where string, args ...any) int64 {
	f.t.Helper()
	var n int64
	q := f.table(name)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		f.t.Fatalf("count %s: %v", name, err)
	}
	return n
}

// UserByUsername loads an account; it fails the test when absent.
func (f *Fixtures) UserByUsername(username string) models.User {
	f.t.Helper()
	var u models.User
	if err := f.table(moodle.TableUser).Where("username = ?", username).Take(&u).Error; err != nil {
		f.t.Fatalf("user %q: %v", username, err)
	}
	return u
}
