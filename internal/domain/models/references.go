// internal/domain/models/references.go
package models

// UserReference is the minimal shape shared by activity tables that the
// retention checks consult. Only the userid column matters; the tables are
// written by the LMS itself.
type UserReference struct {
	ID     int64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID int64 `gorm:"column:userid"`
}
