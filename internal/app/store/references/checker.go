// Package references tells whether an account still has recorded activity
// (grades, posts, attempts...) that forbids deleting it.
package references

import (
	"context"
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"gorm.io/gorm"
)

// Checker scans a fixed list of tables keyed by userid.
type Checker struct {
	db     *gorm.DB
	tables []string
}

// New returns a checker over tables, or over moodle.ReferenceTables when
// tables is empty.
func New(db *gorm.DB, tables ...string) *Checker {
	if len(tables) == 0 {
		tables = moodle.ReferenceTables
	}
	return &Checker{db: db, tables: tables}
}

// Tables returns the scanned table names (unprefixed).
func (c *Checker) Tables() []string {
	return c.tables
}

// Find reports the first table holding a row for userID.
func (c *Checker) Find(ctx context.Context, userID int64) (string, bool, error) {
	for _, name := range c.tables {
		var ids []int64
		err := c.db.WithContext(ctx).Table(moodle.Table(c.db, name)).
			Where("userid = ?", userID).
			Limit(1).
			Pluck("id", &ids).Error
		if err != nil {
			return "", false, fmt.Errorf("check %s for user %d: %w", name, userID, err)
		}
		if len(ids) > 0 {
			return name, true, nil
		}
	}
	return "", false, nil
}

// HasReferences reports whether userID has any recorded activity.
func (c *Checker) HasReferences(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := c.Find(ctx, userID)
	return ok, err
}
