// internal/domain/models/enrol.go
package models

// Enrol is an enrolment method instance attached to a course.
type Enrol struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Enrol        string `gorm:"column:enrol;size:20"`
	Status       int    `gorm:"column:status"`
	CourseID     int64  `gorm:"column:courseid;index"`
	SortOrder    int64  `gorm:"column:sortorder"`
	RoleID       int64  `gorm:"column:roleid"`
	CustomInt1   int64  `gorm:"column:customint1"`
	TimeCreated  int64  `gorm:"column:timecreated"`
	TimeModified int64  `gorm:"column:timemodified"`
}

// UserEnrolment links a user to an enrolment method instance. A row whose
// EnrolID has no live Enrol is invalid and gets purged.
type UserEnrolment struct {
	ID           int64 `gorm:"column:id;primaryKey;autoIncrement"`
	Status       int   `gorm:"column:status"`
	EnrolID      int64 `gorm:"column:enrolid;index"`
	UserID       int64 `gorm:"column:userid;index"`
	TimeStart    int64 `gorm:"column:timestart"`
	TimeEnd      int64 `gorm:"column:timeend"`
	ModifierID   int64 `gorm:"column:modifierid"`
	TimeCreated  int64 `gorm:"column:timecreated"`
	TimeModified int64 `gorm:"column:timemodified"`
}
