// internal/domain/models/cohort.go
package models

// Cohort is a named group of accounts scoped to one context.
//
// NOTE:
//   - Cohorts created by the reconciler carry an IDNumber of the form
//     "<strategy>:<scope>:<key>" so that a strategy can find the cohorts it owns.
//   - Membership lives in CohortMember; nothing outside the reconciler edits it.
type Cohort struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ContextID         int64  `gorm:"column:contextid;index"`
	Name              string `gorm:"column:name;size:254"`
	IDNumber          string `gorm:"column:idnumber;size:100;index"`
	Description       string `gorm:"column:description"`
	DescriptionFormat int    `gorm:"column:descriptionformat"`
	Visible           int    `gorm:"column:visible"`
	Component         string `gorm:"column:component;size:100"`
	TimeCreated       int64  `gorm:"column:timecreated"`
	TimeModified      int64  `gorm:"column:timemodified"`
}

// CohortMember is the join between cohorts and accounts.
// Exactly one row per (cohortid, userid).
type CohortMember struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	CohortID  int64 `gorm:"column:cohortid;uniqueIndex:idx_cohort_member"`
	UserID    int64 `gorm:"column:userid;uniqueIndex:idx_cohort_member"`
	TimeAdded int64 `gorm:"column:timeadded"`
}
