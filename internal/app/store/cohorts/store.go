// Package cohorts provides the cohort and membership primitives used by the
// cohort reconciler. Membership changes go through AddMember and
// RemoveMember only.
package cohorts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// ErrNameTaken is returned by Ensure when the cohort name is used in the
// context by a cohort with another idnumber.
var ErrNameTaken = errors.New("cohort name already used in context")

// Component marks cohorts created by the synchronization.
const Component = "escosync"

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// Spec identifies a managed cohort.
type Spec struct {
	ContextID   int64
	IDNumber    string
	Name        string
	Description string
}

// GetByIDNumber loads a cohort by idnumber; nil when absent.
func (s *Store) GetByIDNumber(ctx context.Context, idNumber string) (*models.Cohort, error) {
	return moodle.FindOne[models.Cohort](ctx, s.db, moodle.TableCohort, "cohort", idNumber, "idnumber = ?", idNumber)
}

// GetByName loads a cohort by its (context, name) natural key; nil when absent.
func (s *Store) GetByName(ctx context.Context, contextID int64, name string) (*models.Cohort, error) {
	key := fmt.Sprintf("%d/%s", contextID, name)
	return moodle.FindOne[models.Cohort](ctx, s.db, moodle.TableCohort, "cohort", key,
		"contextid = ? AND name = ?", contextID, name)
}

// Ensure returns the cohort of spec, creating it when needed. A cohort with
// the same (context, name) but no idnumber is adopted: it gets the
// idnumber so that later passes find it directly. A cohort found by
// idnumber in another context is moved to spec.ContextID.
func (s *Store) Ensure(ctx context.Context, spec Spec, now int64) (*models.Cohort, moodle.Outcome, error) {
	c, err := s.GetByIDNumber(ctx, spec.IDNumber)
	if err != nil {
		return nil, moodle.Unchanged, err
	}
	if c == nil {
		c, err = s.GetByName(ctx, spec.ContextID, spec.Name)
		if err != nil {
			return nil, moodle.Unchanged, err
		}
		if c != nil && c.IDNumber != "" && c.IDNumber != spec.IDNumber {
			return nil, moodle.Unchanged, fmt.Errorf("%w: %q (idnumber %q)", ErrNameTaken, spec.Name, c.IDNumber)
		}
	}

	if c == nil {
		c = &models.Cohort{
			ContextID:    spec.ContextID,
			Name:         spec.Name,
			IDNumber:     spec.IDNumber,
			Description:  spec.Description,
			Visible:      1,
			Component:    Component,
			TimeCreated:  now,
			TimeModified: now,
		}
		if err := s.table(ctx, moodle.TableCohort).Create(c).Error; err != nil {
			return nil, moodle.Unchanged, fmt.Errorf("insert cohort %q: %w", spec.IDNumber, err)
		}
		return c, moodle.Created, nil
	}

	if c.ContextID == spec.ContextID && c.IDNumber == spec.IDNumber &&
		c.Name == spec.Name && c.Description == spec.Description {
		return c, moodle.Unchanged, nil
	}
	if c.ContextID != spec.ContextID || c.Name != spec.Name {
		// Moving or renaming must not collide with another cohort of the
		// target context.
		other, err := s.GetByName(ctx, spec.ContextID, spec.Name)
		if err != nil {
			return nil, moodle.Unchanged, err
		}
		if other != nil && other.ID != c.ID {
			return nil, moodle.Unchanged, fmt.Errorf("%w: %q (idnumber %q)", ErrNameTaken, spec.Name, other.IDNumber)
		}
	}
	c.ContextID, c.IDNumber, c.Name, c.Description, c.TimeModified = spec.ContextID, spec.IDNumber, spec.Name, spec.Description, now
	err = s.table(ctx, moodle.TableCohort).Where("id = ?", c.ID).Updates(map[string]any{
		"contextid":    c.ContextID,
		"idnumber":     c.IDNumber,
		"name":         c.Name,
		"description":  c.Description,
		"timemodified": now,
	}).Error
	if err != nil {
		return nil, moodle.Unchanged, fmt.Errorf("update cohort %d: %w", c.ID, err)
	}
	return c, moodle.Updated, nil
}

// ListByIDNumberPrefix returns the cohorts whose idnumber starts with prefix.
func (s *Store) ListByIDNumberPrefix(ctx context.Context, prefix string) ([]models.Cohort, error) {
	var rows []models.Cohort
	err := s.table(ctx, moodle.TableCohort).
		Where("idnumber LIKE ?", prefix+"%").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, c := range rows {
		if strings.HasPrefix(c.IDNumber, prefix) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Members returns the member account ids of a cohort.
func (s *Store) Members(ctx context.Context, cohortID int64) (map[int64]struct{}, error) {
	var ids []int64
	err := s.table(ctx, moodle.TableCohortMembers).
		Where("cohortid = ?", cohortID).
		Pluck("userid", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// AddMember adds userID to the cohort. It reports false when the account
// was already a member.
func (s *Store) AddMember(ctx context.Context, cohortID, userID int64, now int64) (bool, error) {
	var n int64
	err := s.table(ctx, moodle.TableCohortMembers).
		Where("cohortid = ? AND userid = ?", cohortID, userID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	m := models.CohortMember{CohortID: cohortID, UserID: userID, TimeAdded: now}
	if err := s.table(ctx, moodle.TableCohortMembers).Create(&m).Error; err != nil {
		return false, fmt.Errorf("add user %d to cohort %d: %w", userID, cohortID, err)
	}
	return true, nil
}

// RemoveMember removes userID from the cohort.
func (s *Store) RemoveMember(ctx context.Context, cohortID, userID int64) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM "+moodle.Table(s.db, moodle.TableCohortMembers)+" WHERE cohortid = ? AND userid = ?",
		cohortID, userID)
	if res.Error != nil {
		return false, fmt.Errorf("remove user %d from cohort %d: %w", userID, cohortID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes a cohort and its memberships.
func (s *Store) Delete(ctx context.Context, cohortID int64) error {
	for _, st := range []struct{ table, col string }{
		{moodle.TableCohortMembers, "cohortid"},
		{moodle.TableCohort, "id"},
	} {
		sql := "DELETE FROM " + moodle.Table(s.db, st.table) + " WHERE " + st.col + " = ?"
		if err := s.db.WithContext(ctx).Exec(sql, cohortID).Error; err != nil {
			return fmt.Errorf("delete cohort %d: %w", cohortID, err)
		}
	}
	return nil
}

// DeleteEmpty removes every cohort without members and returns them.
func (s *Store) DeleteEmpty(ctx context.Context) ([]models.Cohort, error) {
	members := moodle.Table(s.db, moodle.TableCohortMembers)
	var empty []models.Cohort
	err := s.table(ctx, moodle.TableCohort).
		Where("id NOT IN (SELECT cohortid FROM " + members + ")").
		Order("id").
		Find(&empty).Error
	if err != nil {
		return nil, err
	}
	for _, c := range empty {
		if err := s.Delete(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return empty, nil
}
