// Package enrolments manages course enrolment methods and user enrolments.
// A user enrolment whose method no longer exists is invalid; PurgeOrphans
// removes such rows.
package enrolments

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// MethodManual is the enrolment plugin used for private spaces.
const MethodManual = "manual"

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// EnsureManual returns the manual enrolment method of a course, creating it
// with roleID as default role when missing.
func (s *Store) EnsureManual(ctx context.Context, courseID, roleID, now int64) (*models.Enrol, error) {
	e, err := moodle.FindOne[models.Enrol](ctx, s.db, moodle.TableEnrol, "enrol", fmt.Sprintf("%s/%d", MethodManual, courseID),
		"courseid = ? AND enrol = ?", courseID, MethodManual)
	if err != nil || e != nil {
		return e, err
	}
	e = &models.Enrol{
		Enrol:        MethodManual,
		CourseID:     courseID,
		RoleID:       roleID,
		TimeCreated:  now,
		TimeModified: now,
	}
	if err := s.table(ctx, moodle.TableEnrol).Create(e).Error; err != nil {
		return nil, fmt.Errorf("create manual enrolment for course %d: %w", courseID, err)
	}
	return e, nil
}

// Enrol enrols userID through enrolID. It reports false when the user was
// already enrolled.
func (s *Store) Enrol(ctx context.Context, enrolID, userID, now int64) (bool, error) {
	var n int64
	err := s.table(ctx, moodle.TableUserEnrolments).
		Where("enrolid = ? AND userid = ?", enrolID, userID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	ue := models.UserEnrolment{EnrolID: enrolID, UserID: userID, TimeStart: now, TimeCreated: now, TimeModified: now}
	if err := s.table(ctx, moodle.TableUserEnrolments).Create(&ue).Error; err != nil {
		return false, fmt.Errorf("enrol user %d through %d: %w", userID, enrolID, err)
	}
	return true, nil
}

// Unenrol removes the enrolment of userID through enrolID.
func (s *Store) Unenrol(ctx context.Context, enrolID, userID int64) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM "+moodle.Table(s.db, moodle.TableUserEnrolments)+" WHERE enrolid = ? AND userid = ?",
		enrolID, userID)
	if res.Error != nil {
		return false, fmt.Errorf("unenrol user %d from %d: %w", userID, enrolID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Enrolment is a user enrolment with the course it grants.
type Enrolment struct {
	ID       int64 `gorm:"column:id"`
	EnrolID  int64 `gorm:"column:enrolid"`
	CourseID int64 `gorm:"column:courseid"`
}

// ForUser returns the live enrolments of userID.
func (s *Store) ForUser(ctx context.Context, userID int64) ([]Enrolment, error) {
	ue := moodle.Table(s.db, moodle.TableUserEnrolments)
	en := moodle.Table(s.db, moodle.TableEnrol)
	var out []Enrolment
	err := s.db.WithContext(ctx).Table(ue+" ue").
		Select("ue.id, ue.enrolid, e.courseid").
		Joins("JOIN "+en+" e ON e.id = ue.enrolid").
		Where("ue.userid = ?", userID).
		Order("ue.id").
		Scan(&out).Error
	return out, err
}

// CountForUser counts the live enrolments of userID. Enrolments in courses
// whose idnumber starts with exceptPrefix are not counted.
func (s *Store) CountForUser(ctx context.Context, userID int64, exceptPrefix string) (int64, error) {
	ue := moodle.Table(s.db, moodle.TableUserEnrolments)
	en := moodle.Table(s.db, moodle.TableEnrol)
	q := s.db.WithContext(ctx).Table(ue+" ue").
		Joins("JOIN "+en+" e ON e.id = ue.enrolid").
		Where("ue.userid = ?", userID)
	if exceptPrefix != "" {
		// LIKE would read '_' in the prefix as a wildcard.
		q = q.Joins("JOIN "+moodle.Table(s.db, moodle.TableCourse)+" c ON c.id = e.courseid").
			Where("SUBSTR(c.idnumber, 1, ?) <> ?", utf8.RuneCountInString(exceptPrefix), exceptPrefix)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// PurgeOrphans deletes user enrolments whose method no longer exists.
func (s *Store) PurgeOrphans(ctx context.Context) (int64, error) {
	ue := moodle.Table(s.db, moodle.TableUserEnrolments)
	en := moodle.Table(s.db, moodle.TableEnrol)
	res := s.db.WithContext(ctx).Exec("DELETE FROM " + ue + " WHERE enrolid NOT IN (SELECT id FROM " + en + ")")
	if res.Error != nil {
		return 0, fmt.Errorf("purge orphan enrolments: %w", res.Error)
	}
	return res.RowsAffected, nil
}
