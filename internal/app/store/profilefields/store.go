// Package profilefields manages custom profile fields and their per-user
// values.
package profilefields

import (
	"context"
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"gorm.io/gorm"
)

// DataTypeText is the data type of plain text fields.
const DataTypeText = "text"

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// EnsureField returns the id of the field shortName, creating a text field
// when missing.
func (s *Store) EnsureField(ctx context.Context, shortName, name string) (int64, error) {
	f, err := moodle.FindOne[models.UserInfoField](ctx, s.db, moodle.TableInfoField, "profile field", shortName, "shortname = ?", shortName)
	if err != nil {
		return 0, err
	}
	if f != nil {
		return f.ID, nil
	}
	f = &models.UserInfoField{ShortName: shortName, Name: name, DataType: DataTypeText}
	if err := s.table(ctx, moodle.TableInfoField).Create(f).Error; err != nil {
		return 0, fmt.Errorf("create profile field %q: %w", shortName, err)
	}
	return f.ID, nil
}

// Get returns the value of a field for userID.
func (s *Store) Get(ctx context.Context, userID, fieldID int64) (string, bool, error) {
	d, err := s.find(ctx, userID, fieldID)
	if err != nil || d == nil {
		return "", false, err
	}
	return d.Data, true, nil
}

// Set stores value for userID. It reports whether anything was written.
func (s *Store) Set(ctx context.Context, userID, fieldID int64, value string) (bool, error) {
	d, err := s.find(ctx, userID, fieldID)
	if err != nil {
		return false, err
	}
	if d == nil {
		d = &models.UserInfoData{UserID: userID, FieldID: fieldID, Data: value}
		if err := s.table(ctx, moodle.TableInfoData).Create(d).Error; err != nil {
			return false, fmt.Errorf("set profile field %d of user %d: %w", fieldID, userID, err)
		}
		return true, nil
	}
	if d.Data == value {
		return false, nil
	}
	err = s.table(ctx, moodle.TableInfoData).Where("id = ?", d.ID).Update("data", value).Error
	if err != nil {
		return false, fmt.Errorf("set profile field %d of user %d: %w", fieldID, userID, err)
	}
	return true, nil
}

func (s *Store) find(ctx context.Context, userID, fieldID int64) (*models.UserInfoData, error) {
	return moodle.FindOne[models.UserInfoData](ctx, s.db, moodle.TableInfoData, "profile data",
		fmt.Sprintf("%d/%d", userID, fieldID), "userid = ? AND fieldid = ?", userID, fieldID)
}
