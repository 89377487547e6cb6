// Package hierarchy maintains the materialized paths of categories and
// contexts.
//
// Every category carries "/<ancestor ids>/<own id>" in Path and every
// context the same chain of context ids. Ids are assigned by the database,
// so a node is inserted first and its path written in a second statement.
// Paths of descendants are not rewritten when an ancestor moves; CheckPaths
// reports such drift.
package hierarchy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// Context loads the context of (level, instance); nil when absent.
func (s *Store) Context(ctx context.Context, level int, instance int64) (*models.Context, error) {
	key := fmt.Sprintf("%d/%d", level, instance)
	return moodle.FindOne[models.Context](ctx, s.db, moodle.TableContext, "context", key,
		"contextlevel = ? AND instanceid = ?", level, instance)
}

// SystemContext loads the root context.
func (s *Store) SystemContext(ctx context.Context) (*models.Context, error) {
	var c models.Context
	if err := s.table(ctx, moodle.TableContext).Where("id = ?", models.SystemContextID).Take(&c).Error; err != nil {
		return nil, fmt.Errorf("system context: %w", err)
	}
	return &c, nil
}

// CategoryContext loads the context of a category; nil when absent.
func (s *Store) CategoryContext(ctx context.Context, categoryID int64) (*models.Context, error) {
	return s.Context(ctx, models.ContextCategory, categoryID)
}

// CourseContext loads the context of a course; nil when absent.
func (s *Store) CourseContext(ctx context.Context, courseID int64) (*models.Context, error) {
	return s.Context(ctx, models.ContextCourse, courseID)
}

// InsertContext creates the context of (level, instance) below parent.
func (s *Store) InsertContext(ctx context.Context, level int, instance int64, parent *models.Context) (*models.Context, error) {
	c := models.Context{ContextLevel: level, InstanceID: instance}
	if err := s.table(ctx, moodle.TableContext).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("insert context %d/%d: %w", level, instance, err)
	}
	c.Path = childPath(parent.Path, c.ID)
	c.Depth = parent.Depth + 1
	err := s.table(ctx, moodle.TableContext).
		Where("id = ?", c.ID).
		Updates(map[string]any{"path": c.Path, "depth": c.Depth}).Error
	if err != nil {
		return nil, fmt.Errorf("write context path %d: %w", c.ID, err)
	}
	return &c, nil
}

// InsertCategory creates cat below cat.Parent (0 for top level), writes its
// path and depth and creates its context. cat is updated in place.
func (s *Store) InsertCategory(ctx context.Context, cat *models.CourseCategory) (*models.Context, error) {
	parentPath := ""
	depth := 1
	parentCtx, err := s.SystemContext(ctx)
	if err != nil {
		return nil, err
	}

	if cat.Parent != 0 {
		var parent models.CourseCategory
		if err := s.table(ctx, moodle.TableCategories).Where("id = ?", cat.Parent).Take(&parent).Error; err != nil {
			return nil, fmt.Errorf("parent category %d: %w", cat.Parent, err)
		}
		parentPath = parent.Path
		depth = parent.Depth + 1
		pc, err := s.CategoryContext(ctx, parent.ID)
		if err != nil {
			return nil, err
		}
		if pc == nil {
			return nil, fmt.Errorf("parent category %d has no context", parent.ID)
		}
		parentCtx = pc
	}

	cat.ID = 0
	cat.Path = ""
	cat.Depth = depth
	if err := s.table(ctx, moodle.TableCategories).Create(cat).Error; err != nil {
		return nil, fmt.Errorf("insert category %q: %w", cat.IDNumber, err)
	}
	cat.Path = childPath(parentPath, cat.ID)
	if err := s.table(ctx, moodle.TableCategories).Where("id = ?", cat.ID).Update("path", cat.Path).Error; err != nil {
		return nil, fmt.Errorf("write category path %d: %w", cat.ID, err)
	}

	return s.InsertContext(ctx, models.ContextCategory, cat.ID, parentCtx)
}

func childPath(parentPath string, id int64) string {
	return parentPath + "/" + strconv.FormatInt(id, 10)
}

// Inconsistency is a node whose stored path differs from the one derived
// from its parent.
type Inconsistency struct {
	Kind     string // "category" or "context"
	ID       int64
	Path     string
	Expected string
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("%s %d: path %q, expected %q", i.Kind, i.ID, i.Path, i.Expected)
}

// CheckPaths compares every category and every category, course and user
// context with the path derived from its current parent.
func (s *Store) CheckPaths(ctx context.Context) ([]Inconsistency, error) {
	var cats []models.CourseCategory
	if err := s.table(ctx, moodle.TableCategories).Order("id").Find(&cats).Error; err != nil {
		return nil, err
	}
	var ctxs []models.Context
	if err := s.table(ctx, moodle.TableContext).Order("id").Find(&ctxs).Error; err != nil {
		return nil, err
	}
	var courses []models.Course
	if err := s.table(ctx, moodle.TableCourse).Select("id", "category").Find(&courses).Error; err != nil {
		return nil, err
	}

	catByID := make(map[int64]models.CourseCategory, len(cats))
	for _, c := range cats {
		catByID[c.ID] = c
	}
	courseCategory := make(map[int64]int64, len(courses))
	for _, c := range courses {
		courseCategory[c.ID] = c.Category
	}
	type instanceKey struct {
		level    int
		instance int64
	}
	ctxByInstance := make(map[instanceKey]models.Context, len(ctxs))
	var system models.Context
	for _, c := range ctxs {
		ctxByInstance[instanceKey{c.ContextLevel, c.InstanceID}] = c
		if c.ID == models.SystemContextID {
			system = c
		}
	}

	var out []Inconsistency

	for _, c := range cats {
		parentPath := ""
		if c.Parent != 0 {
			p, ok := catByID[c.Parent]
			if !ok {
				out = append(out, Inconsistency{Kind: "category", ID: c.ID, Path: c.Path, Expected: "(missing parent)"})
				continue
			}
			parentPath = p.Path
		}
		if want := childPath(parentPath, c.ID); c.Path != want {
			out = append(out, Inconsistency{Kind: "category", ID: c.ID, Path: c.Path, Expected: want})
		}
	}

	for _, c := range ctxs {
		var parent models.Context
		var ok bool
		switch c.ContextLevel {
		case models.ContextCategory:
			cat, found := catByID[c.InstanceID]
			if !found {
				continue
			}
			if cat.Parent == 0 {
				parent, ok = system, true
			} else {
				parent, ok = ctxByInstance[instanceKey{models.ContextCategory, cat.Parent}]
			}
		case models.ContextCourse:
			category, found := courseCategory[c.InstanceID]
			if !found {
				continue
			}
			parent, ok = ctxByInstance[instanceKey{models.ContextCategory, category}]
		case models.ContextUser:
			parent, ok = system, true
		default:
			continue
		}
		if !ok {
			out = append(out, Inconsistency{Kind: "context", ID: c.ID, Path: c.Path, Expected: "(missing parent context)"})
			continue
		}
		want := childPath(parent.Path, c.ID)
		if c.Path != want || c.Depth != strings.Count(want, "/") {
			out = append(out, Inconsistency{Kind: "context", ID: c.ID, Path: c.Path, Expected: want})
		}
	}
	return out, nil
}
