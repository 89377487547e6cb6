// internal/domain/models/role.go
package models

// Role is an LMS role definition, looked up by ShortName.
type Role struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string `gorm:"column:name;size:255"`
	ShortName string `gorm:"column:shortname;size:100;uniqueIndex"`
	SortOrder int64  `gorm:"column:sortorder"`
	Archetype string `gorm:"column:archetype;size:30"`
}

// RoleAssignment grants a role to a user in a context. At most one row
// exists per (roleid, contextid, userid); the stores check before inserting.
type RoleAssignment struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RoleID       int64  `gorm:"column:roleid;index"`
	ContextID    int64  `gorm:"column:contextid;index"`
	UserID       int64  `gorm:"column:userid;index"`
	TimeModified int64  `gorm:"column:timemodified"`
	ModifierID   int64  `gorm:"column:modifierid"`
	Component    string `gorm:"column:component;size:100"`
	ItemID       int64  `gorm:"column:itemid"`
	SortOrder    int64  `gorm:"column:sortorder"`
}
