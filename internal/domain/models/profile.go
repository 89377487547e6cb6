// internal/domain/models/profile.go
package models

// UserInfoField defines a custom profile field.
type UserInfoField struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ShortName string `gorm:"column:shortname;size:255;uniqueIndex"`
	Name      string `gorm:"column:name"`
	DataType  string `gorm:"column:datatype;size:255"`
}

// UserInfoData is the value of one custom profile field for one user.
type UserInfoData struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID  int64  `gorm:"column:userid;index"`
	FieldID int64  `gorm:"column:fieldid;index"`
	Data    string `gorm:"column:data"`
}
