// internal/domain/models/category.go
package models

// CourseCategory is an organizational node of the LMS. Institutions (or
// groupings of institutions) map to one category each, keyed by IDNumber.
type CourseCategory struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name         string `gorm:"column:name;size:255"`
	IDNumber     string `gorm:"column:idnumber;size:100;index"`
	Description  string `gorm:"column:description"`
	Parent       int64  `gorm:"column:parent;index"`
	SortOrder    int64  `gorm:"column:sortorder"`
	CourseCount  int64  `gorm:"column:coursecount"`
	Visible      int    `gorm:"column:visible"`
	TimeModified int64  `gorm:"column:timemodified"`
	Depth        int    `gorm:"column:depth"`
	Path         string `gorm:"column:path;size:255"`
}
