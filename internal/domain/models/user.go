// internal/domain/models/user.go
package models

// User is a row of the LMS account table.
//
// NOTE:
//   - Username is the lowercased directory uid for synchronized accounts.
//   - Times are Unix seconds, as the LMS stores them.
type User struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Auth         string `gorm:"column:auth;size:20;index"`
	Confirmed    int    `gorm:"column:confirmed"`
	Deleted      int    `gorm:"column:deleted;index"`
	Suspended    int    `gorm:"column:suspended"`
	MnetHostID   int64  `gorm:"column:mnethostid"`
	Username     string `gorm:"column:username;size:100;index"`
	Password     string `gorm:"column:password;size:255"`
	IDNumber     string `gorm:"column:idnumber;size:255"`
	FirstName    string `gorm:"column:firstname;size:100"`
	LastName     string `gorm:"column:lastname;size:100"`
	Email        string `gorm:"column:email;size:100"`
	City         string `gorm:"column:city;size:120"`
	Country      string `gorm:"column:country;size:2"`
	Lang         string `gorm:"column:lang;size:30"`
	Timezone     string `gorm:"column:timezone;size:100"`
	FirstAccess  int64  `gorm:"column:firstaccess"`
	LastAccess   int64  `gorm:"column:lastaccess"`
	LastLogin    int64  `gorm:"column:lastlogin"`
	TimeCreated  int64  `gorm:"column:timecreated"`
	TimeModified int64  `gorm:"column:timemodified"`
}

// LastConnection returns the most recent connection time, falling back to
// the creation time for accounts that never logged in.
func (u User) LastConnection() int64 {
	last := u.LastAccess
	if u.LastLogin > last {
		last = u.LastLogin
	}
	if last == 0 {
		last = u.TimeCreated
	}
	return last
}
