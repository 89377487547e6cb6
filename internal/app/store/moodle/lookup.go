// internal/app/store/moodle/lookup.go
package moodle

import (
	"context"

	"gorm.io/gorm"
)

// Outcome reports what an upsert did.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// FindOne loads the single row of table matching where. It returns nil, nil
// when no row matches and an AmbiguousError when several do.
func FindOne[T any](ctx context.Context, db *gorm.DB, table, entity, key string, where string, args ...any) (*T, error) {
	var rows []T
	if err := db.WithContext(ctx).Table(Table(db, table)).Where(where, args...).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, Ambiguous(entity, key, len(rows))
	}
}
