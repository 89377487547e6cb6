// internal/domain/models/course.go
package models

// Course is an LMS course. Institution private spaces are courses whose
// IDNumber carries the configured forum prefix.
type Course struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Category     int64  `gorm:"column:category;index"`
	SortOrder    int64  `gorm:"column:sortorder"`
	FullName     string `gorm:"column:fullname;size:254"`
	ShortName    string `gorm:"column:shortname;size:255;index"`
	IDNumber     string `gorm:"column:idnumber;size:100;index"`
	Summary      string `gorm:"column:summary"`
	Format       string `gorm:"column:format;size:21"`
	Visible      int    `gorm:"column:visible"`
	StartDate    int64  `gorm:"column:startdate"`
	TimeCreated  int64  `gorm:"column:timecreated"`
	TimeModified int64  `gorm:"column:timemodified"`
}
