// internal/domain/models/context.go
package models

// Context levels used by the LMS access-control model.
const (
	ContextSystem   = 10
	ContextUser     = 30
	ContextCategory = 40
	ContextCourse   = 50
)

// SystemContextID is the id of the root context, whose path is "/1".
const SystemContextID int64 = 1

// Context is an access-control node. Path is the materialized chain of
// ancestor context ids ("/1/12/40"), Depth the number of path segments.
type Context struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ContextLevel int    `gorm:"column:contextlevel;index:idx_context_instance"`
	InstanceID   int64  `gorm:"column:instanceid;index:idx_context_instance"`
	Path         string `gorm:"column:path;size:255"`
	Depth        int    `gorm:"column:depth"`
	Locked       int    `gorm:"column:locked"`
}
