// Package courses manages institution private-space courses and answers the
// ownership questions asked before an owner account is deleted.
package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/hierarchy"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// ErrNoCategoryContext is returned when the course category has no context.
var ErrNoCategoryContext = errors.New("category has no context")

type Store struct {
	db    *gorm.DB
	paths *hierarchy.Store
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, paths: hierarchy.New(db)}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// Spec is the desired state of a private-space course.
type Spec struct {
	IDNumber  string
	ShortName string
	FullName  string
	Summary   string
	Category  int64
}

// GetByIDNumber returns the course with idnumber, nil when absent.
func (s *Store) GetByIDNumber(ctx context.Context, idNumber string) (*models.Course, error) {
	return moodle.FindOne[models.Course](ctx, s.db, moodle.TableCourse, "course", idNumber, "idnumber = ?", idNumber)
}

// GetByID loads a course; nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	return moodle.FindOne[models.Course](ctx, s.db, moodle.TableCourse, "course", fmt.Sprint(id), "id = ?", id)
}

// Upsert creates the course described by spec with its context, or renames it.
func (s *Store) Upsert(ctx context.Context, spec Spec, now int64) (*models.Course, moodle.Outcome, error) {
	cur, err := s.GetByIDNumber(ctx, spec.IDNumber)
	if err != nil {
		return nil, moodle.Unchanged, err
	}

	if cur != nil {
		if cur.FullName == spec.FullName && cur.ShortName == spec.ShortName && cur.Summary == spec.Summary {
			return cur, moodle.Unchanged, nil
		}
		cur.FullName, cur.ShortName, cur.Summary, cur.TimeModified = spec.FullName, spec.ShortName, spec.Summary, now
		err := s.table(ctx, moodle.TableCourse).Where("id = ?", cur.ID).Updates(map[string]any{
			"fullname":     cur.FullName,
			"shortname":    cur.ShortName,
			"summary":      cur.Summary,
			"timemodified": now,
		}).Error
		if err != nil {
			return nil, moodle.Unchanged, fmt.Errorf("update course %q: %w", spec.IDNumber, err)
		}
		return cur, moodle.Updated, nil
	}

	parent, err := s.paths.CategoryContext(ctx, spec.Category)
	if err != nil {
		return nil, moodle.Unchanged, err
	}
	if parent == nil {
		return nil, moodle.Unchanged, fmt.Errorf("course %q: %w: %d", spec.IDNumber, ErrNoCategoryContext, spec.Category)
	}

	c := models.Course{
		Category:     spec.Category,
		FullName:     spec.FullName,
		ShortName:    spec.ShortName,
		IDNumber:     spec.IDNumber,
		Summary:      spec.Summary,
		Format:       "topics",
		Visible:      1,
		StartDate:    now,
		TimeCreated:  now,
		TimeModified: now,
	}
	if err := s.table(ctx, moodle.TableCourse).Create(&c).Error; err != nil {
		return nil, moodle.Unchanged, fmt.Errorf("insert course %q: %w", spec.IDNumber, err)
	}
	if _, err := s.paths.InsertContext(ctx, models.ContextCourse, c.ID, parent); err != nil {
		return nil, moodle.Unchanged, err
	}
	err = s.table(ctx, moodle.TableCategories).Where("id = ?", spec.Category).
		Update("coursecount", gorm.Expr("coursecount + ?", 1)).Error
	if err != nil {
		return nil, moodle.Unchanged, err
	}
	return &c, moodle.Created, nil
}

// OwnedBy returns the courses where userID holds one of roleIDs.
func (s *Store) OwnedBy(ctx context.Context, userID int64, roleIDs []int64) ([]models.Course, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	ra := moodle.Table(s.db, moodle.TableRoleAssignment)
	cx := moodle.Table(s.db, moodle.TableContext)

	var ids []int64
	err := s.db.WithContext(ctx).Table(ra+" ra").
		Joins("JOIN "+cx+" cx ON cx.id = ra.contextid").
		Where("ra.userid = ? AND ra.roleid IN ? AND cx.contextlevel = ?", userID, roleIDs, models.ContextCourse).
		Distinct().
		Pluck("cx.instanceid", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var out []models.Course
	err = s.table(ctx, moodle.TableCourse).Where("id IN ?", ids).Order("id").Find(&out).Error
	return out, err
}

// OtherOwners counts the active accounts other than userID holding one of
// roleIDs in the course.
func (s *Store) OtherOwners(ctx context.Context, courseID, userID int64, roleIDs []int64) (int64, error) {
	if len(roleIDs) == 0 {
		return 0, nil
	}
	ra := moodle.Table(s.db, moodle.TableRoleAssignment)
	cx := moodle.Table(s.db, moodle.TableContext)
	us := moodle.Table(s.db, moodle.TableUser)

	var n int64
	err := s.db.WithContext(ctx).Table(ra+" ra").
		Joins("JOIN "+cx+" cx ON cx.id = ra.contextid").
		Joins("JOIN "+us+" u ON u.id = ra.userid").
		Where("cx.contextlevel = ? AND cx.instanceid = ?", models.ContextCourse, courseID).
		Where("ra.roleid IN ? AND ra.userid <> ?", roleIDs, userID).
		Where("u.deleted = 0 AND u.suspended = 0").
		Distinct("ra.userid").
		Count(&n).Error
	return n, err
}

// Delete removes a course with its enrolment methods, user enrolments,
// role assignments and context.
func (s *Store) Delete(ctx context.Context, courseID int64) error {
	c, err := s.GetByID(ctx, courseID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}

	ue := moodle.Table(s.db, moodle.TableUserEnrolments)
	en := moodle.Table(s.db, moodle.TableEnrol)
	ra := moodle.Table(s.db, moodle.TableRoleAssignment)
	cx := moodle.Table(s.db, moodle.TableContext)
	co := moodle.Table(s.db, moodle.TableCourse)
	ca := moodle.Table(s.db, moodle.TableCategories)

	stmts := []struct {
		sql  string
		args []any
	}{
		{"DELETE FROM " + ue + " WHERE enrolid IN (SELECT id FROM " + en + " WHERE courseid = ?)", []any{courseID}},
		{"DELETE FROM " + en + " WHERE courseid = ?", []any{courseID}},
		{"DELETE FROM " + ra + " WHERE contextid IN (SELECT id FROM " + cx + " WHERE contextlevel = ? AND instanceid = ?)", []any{models.ContextCourse, courseID}},
		{"DELETE FROM " + cx + " WHERE contextlevel = ? AND instanceid = ?", []any{models.ContextCourse, courseID}},
		{"DELETE FROM " + co + " WHERE id = ?", []any{courseID}},
		{"UPDATE " + ca + " SET coursecount = coursecount - 1 WHERE id = ? AND coursecount > 0", []any{c.Category}},
	}
	for _, st := range stmts {
		if err := s.db.WithContext(ctx).Exec(st.sql, st.args...).Error; err != nil {
			return fmt.Errorf("delete course %d: %w", courseID, err)
		}
	}
	return nil
}
