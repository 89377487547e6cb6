// Package categories upserts the LMS category of an institution or a
// grouping of institutions, keyed by idnumber.
package categories

import (
	"context"
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/hierarchy"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

type Store struct {
	db    *gorm.DB
	paths *hierarchy.Store
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, paths: hierarchy.New(db)}
}

// Spec is the desired state of a category.
type Spec struct {
	IDNumber    string
	Name        string
	Description string
	Parent      int64
}

// GetByIDNumber returns the category with idnumber, nil when absent.
func (s *Store) GetByIDNumber(ctx context.Context, idNumber string) (*models.CourseCategory, error) {
	return moodle.FindOne[models.CourseCategory](ctx, s.db, moodle.TableCategories, "category", idNumber,
		"idnumber = ?", idNumber)
}

// GetByID loads a category; nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.CourseCategory, error) {
	return moodle.FindOne[models.CourseCategory](ctx, s.db, moodle.TableCategories, "category", fmt.Sprint(id), "id = ?", id)
}

// Upsert creates the category described by spec or rewrites its name and
// description when they differ. The parent of an existing category is not
// changed: moving a category would invalidate descendant paths.
func (s *Store) Upsert(ctx context.Context, spec Spec, now int64) (*models.CourseCategory, moodle.Outcome, error) {
	cur, err := s.GetByIDNumber(ctx, spec.IDNumber)
	if err != nil {
		return nil, moodle.Unchanged, err
	}

	if cur == nil {
		cat := models.CourseCategory{
			Name:         spec.Name,
			IDNumber:     spec.IDNumber,
			Description:  spec.Description,
			Parent:       spec.Parent,
			Visible:      1,
			TimeModified: now,
		}
		if err := s.nextSortOrder(ctx, &cat); err != nil {
			return nil, moodle.Unchanged, err
		}
		if _, err := s.paths.InsertCategory(ctx, &cat); err != nil {
			return nil, moodle.Unchanged, err
		}
		return &cat, moodle.Created, nil
	}

	if cur.Name == spec.Name && cur.Description == spec.Description {
		return cur, moodle.Unchanged, nil
	}
	cur.Name = spec.Name
	cur.Description = spec.Description
	cur.TimeModified = now
	err = s.db.WithContext(ctx).Table(moodle.Table(s.db, moodle.TableCategories)).
		Where("id = ?", cur.ID).
		Updates(map[string]any{
			"name":         cur.Name,
			"description":  cur.Description,
			"timemodified": now,
		}).Error
	if err != nil {
		return nil, moodle.Unchanged, fmt.Errorf("update category %q: %w", spec.IDNumber, err)
	}
	return cur, moodle.Updated, nil
}

func (s *Store) nextSortOrder(ctx context.Context, cat *models.CourseCategory) error {
	var max struct{ Max int64 }
	err := s.db.WithContext(ctx).Table(moodle.Table(s.db, moodle.TableCategories)).
		Select("COALESCE(MAX(sortorder), 0) AS max").
		Where("parent = ?", cat.Parent).
		Scan(&max).Error
	if err != nil {
		return err
	}
	cat.SortOrder = max.Max + 10000
	return nil
}
