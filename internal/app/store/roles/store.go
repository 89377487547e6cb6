// Package roles looks up roles and manages (role, context, user) grants.
// At most one assignment exists per triple.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// ErrRoleNotFound is returned for an unknown role short name.
var ErrRoleNotFound = errors.New("role not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// IDByShortName returns the id of a role.
func (s *Store) IDByShortName(ctx context.Context, shortName string) (int64, error) {
	r, err := moodle.FindOne[models.Role](ctx, s.db, moodle.TableRole, "role", shortName, "shortname = ?", shortName)
	if err != nil {
		return 0, err
	}
	if r == nil {
		return 0, fmt.Errorf("%w: %q", ErrRoleNotFound, shortName)
	}
	return r.ID, nil
}

// IDsByShortName resolves several roles; every name must exist.
func (s *Store) IDsByShortName(ctx context.Context, shortNames []string) ([]int64, error) {
	ids := make([]int64, 0, len(shortNames))
	for _, name := range shortNames {
		id, err := s.IDByShortName(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Assign grants roleID to userID in contextID. It reports false when the
// assignment already existed.
func (s *Store) Assign(ctx context.Context, roleID, contextID, userID, now int64) (bool, error) {
	var n int64
	err := s.table(ctx, moodle.TableRoleAssignment).
		Where("roleid = ? AND contextid = ? AND userid = ?", roleID, contextID, userID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	ra := models.RoleAssignment{RoleID: roleID, ContextID: contextID, UserID: userID, TimeModified: now}
	if err := s.table(ctx, moodle.TableRoleAssignment).Create(&ra).Error; err != nil {
		return false, fmt.Errorf("assign role %d to user %d in context %d: %w", roleID, userID, contextID, err)
	}
	return true, nil
}

// Unassign removes the (role, context, user) assignment.
func (s *Store) Unassign(ctx context.Context, roleID, contextID, userID int64) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM "+moodle.Table(s.db, moodle.TableRoleAssignment)+" WHERE roleid = ? AND contextid = ? AND userid = ?",
		roleID, contextID, userID)
	if res.Error != nil {
		return false, fmt.Errorf("unassign role %d from user %d in context %d: %w", roleID, userID, contextID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UnassignAll removes every assignment of userID in contextID.
func (s *Store) UnassignAll(ctx context.Context, contextID, userID int64) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM "+moodle.Table(s.db, moodle.TableRoleAssignment)+" WHERE contextid = ? AND userid = ?",
		contextID, userID)
	return res.RowsAffected, res.Error
}

// Holds reports whether userID has one of roleIDs in any context.
func (s *Store) Holds(ctx context.Context, userID int64, roleIDs []int64) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	var n int64
	err := s.table(ctx, moodle.TableRoleAssignment).
		Where("userid = ? AND roleid IN ?", userID, roleIDs).
		Count(&n).Error
	return n > 0, err
}

// Grant is a role assignment with the context it applies to.
type Grant struct {
	ID           int64 `gorm:"column:id"`
	RoleID       int64 `gorm:"column:roleid"`
	ContextID    int64 `gorm:"column:contextid"`
	ContextLevel int   `gorm:"column:contextlevel"`
	InstanceID   int64 `gorm:"column:instanceid"`
}

// Grants returns the assignments of userID for roleIDs in contexts of level.
func (s *Store) Grants(ctx context.Context, userID int64, roleIDs []int64, level int) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	ra := moodle.Table(s.db, moodle.TableRoleAssignment)
	cx := moodle.Table(s.db, moodle.TableContext)

	var out []Grant
	err := s.db.WithContext(ctx).Table(ra+" ra").
		Select("ra.id, ra.roleid, ra.contextid, cx.contextlevel, cx.instanceid").
		Joins("JOIN "+cx+" cx ON cx.id = ra.contextid").
		Where("ra.userid = ? AND ra.roleid IN ? AND cx.contextlevel = ?", userID, roleIDs, level).
		Order("ra.id").
		Scan(&out).Error
	return out, err
}
