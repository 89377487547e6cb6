// internal/app/store/moodle/tables.go
package moodle

import (
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// Unprefixed LMS table names.
const (
	TableUser           = "user"
	TableCategories     = "course_categories"
	TableContext        = "context"
	TableCourse         = "course"
	TableCohort         = "cohort"
	TableCohortMembers  = "cohort_members"
	TableRole           = "role"
	TableRoleAssignment = "role_assignments"
	TableEnrol          = "enrol"
	TableUserEnrolments = "user_enrolments"
	TableInfoField      = "user_info_field"
	TableInfoData       = "user_info_data"
)

// ReferenceTables hold per-user activity whose presence makes an account
// unsafe to delete before the force-delete threshold.
var ReferenceTables = []string{
	"grade_grades",
	"forum_posts",
	"quiz_attempts",
	"choice_answers",
	"survey_answers",
	"course_modules_completion",
	"course_completions",
}

type tableModel struct {
	name  string
	model any
}

func schemaTables() []tableModel {
	tables := []tableModel{
		{TableUser, &models.User{}},
		{TableCategories, &models.CourseCategory{}},
		{TableContext, &models.Context{}},
		{TableCourse, &models.Course{}},
		{TableCohort, &models.Cohort{}},
		{TableCohortMembers, &models.CohortMember{}},
		{TableRole, &models.Role{}},
		{TableRoleAssignment, &models.RoleAssignment{}},
		{TableEnrol, &models.Enrol{}},
		{TableUserEnrolments, &models.UserEnrolment{}},
		{TableInfoField, &models.UserInfoField{}},
		{TableInfoData, &models.UserInfoData{}},
	}
	for _, name := range ReferenceTables {
		tables = append(tables, tableModel{name, &models.UserReference{}})
	}
	return tables
}

// DefaultRoles are seeded by Migrate on an empty role table.
var DefaultRoles = []models.Role{
	{Name: "Manager", ShortName: "manager", SortOrder: 1, Archetype: "manager"},
	{Name: "Course creator", ShortName: "coursecreator", SortOrder: 2, Archetype: "coursecreator"},
	{Name: "Teacher", ShortName: "editingteacher", SortOrder: 3, Archetype: "editingteacher"},
	{Name: "Non-editing teacher", ShortName: "teacher", SortOrder: 4, Archetype: "teacher"},
	{Name: "Student", ShortName: "student", SortOrder: 5, Archetype: "student"},
	{Name: "Guest", ShortName: "guest", SortOrder: 6, Archetype: "guest"},
	{Name: "Authenticated user", ShortName: "user", SortOrder: 7, Archetype: "user"},
}

// Migrate creates the LMS schema subset this tool touches and seeds the
// system context and default roles. Production installations own their
// schema; Migrate is meant for the sqlite driver (development and tests).
func Migrate(db *gorm.DB) error {
	for _, tm := range schemaTables() {
		if err := db.Table(Table(db, tm.name)).AutoMigrate(tm.model); err != nil {
			return fmt.Errorf("migrate %s: %w", tm.name, err)
		}
	}

	var contexts int64
	if err := db.Table(Table(db, TableContext)).Count(&contexts).Error; err != nil {
		return err
	}
	if contexts == 0 {
		sys := models.Context{
			ID:           models.SystemContextID,
			ContextLevel: models.ContextSystem,
			Path:         fmt.Sprintf("/%d", models.SystemContextID),
			Depth:        1,
		}
		if err := db.Table(Table(db, TableContext)).Create(&sys).Error; err != nil {
			return fmt.Errorf("seed system context: %w", err)
		}
	}

	var roles int64
	if err := db.Table(Table(db, TableRole)).Count(&roles).Error; err != nil {
		return err
	}
	if roles == 0 {
		seed := make([]models.Role, len(DefaultRoles))
		copy(seed, DefaultRoles)
		if err := db.Table(Table(db, TableRole)).Create(&seed).Error; err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
	}
	return nil
}

// RequireTables verifies that every table the tool reads or writes exists.
func RequireTables(db *gorm.DB) error {
	for _, tm := range schemaTables() {
		name := Table(db, tm.name)
		if !db.Migrator().HasTable(name) {
			return fmt.Errorf("lms table %s does not exist", name)
		}
	}
	return nil
}
