package userstore

// Terminology: User Identifiers
//   - UserID / userID: the LMS account id (mdl_user.id)
//   - Username: the lowercased directory uid, the natural key of an account

import (
	"context"
	"fmt"
	"strings"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Accounts that are never listed for retention, whatever their auth method.
var reservedUsernames = []string{"guest", "admin"}

// AnonymousPrefix starts the username of every anonymized account.
const AnonymousPrefix = "anonyme-"

// AnonymousName replaces the first and last name of anonymized accounts.
const AnonymousName = "Anonyme"

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, name string) *gorm.DB {
	return s.db.WithContext(ctx).Table(moodle.Table(s.db, name))
}

// Spec is the desired state of a synchronized account.
type Spec struct {
	Username  string
	Auth      string
	FirstName string
	LastName  string
	Email     string
	Lang      string
	Country   string
	Timezone  string
}

// GetByUsername loads an account by username; nil when absent.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	username = normalize.Username(username)
	return moodle.FindOne[models.User](ctx, s.db, moodle.TableUser, "user", username,
		"username = ? AND deleted = 0", username)
}

// GetByID loads an account; nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return moodle.FindOne[models.User](ctx, s.db, moodle.TableUser, "user", fmt.Sprint(id), "id = ?", id)
}

// IDsByUsername resolves usernames to account ids. Usernames without an
// account are absent from the result.
func (s *Store) IDsByUsername(ctx context.Context, usernames []string) (map[string]int64, error) {
	out := make(map[string]int64, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	var rows []models.User
	err := s.table(ctx, moodle.TableUser).
		Select("id", "username").
		Where("username IN ? AND deleted = 0", usernames).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.Username] = u.ID
	}
	return out, nil
}

// Upsert creates the account described by spec or updates the fields that
// differ. An account whose fields already match is not written.
func (s *Store) Upsert(ctx context.Context, spec Spec, now int64) (*models.User, moodle.Outcome, error) {
	spec.Username = normalize.Username(spec.Username)
	cur, err := s.GetByUsername(ctx, spec.Username)
	if err != nil {
		return nil, moodle.Unchanged, err
	}

	if cur == nil {
		u := models.User{
			Auth:         spec.Auth,
			Confirmed:    1,
			MnetHostID:   1,
			Username:     spec.Username,
			Password:     "not cached",
			FirstName:    spec.FirstName,
			LastName:     spec.LastName,
			Email:        spec.Email,
			Lang:         spec.Lang,
			Country:      spec.Country,
			Timezone:     spec.Timezone,
			TimeCreated:  now,
			TimeModified: now,
		}
		if err := s.table(ctx, moodle.TableUser).Create(&u).Error; err != nil {
			return nil, moodle.Unchanged, fmt.Errorf("insert user %q: %w", spec.Username, err)
		}
		return &u, moodle.Created, nil
	}

	changes := map[string]any{}
	set := func(col string, cur *string, want string) {
		if *cur != want {
			*cur = want
			changes[col] = want
		}
	}
	set("auth", &cur.Auth, spec.Auth)
	set("firstname", &cur.FirstName, spec.FirstName)
	set("lastname", &cur.LastName, spec.LastName)
	set("email", &cur.Email, spec.Email)
	if cur.Suspended != 0 {
		cur.Suspended = 0
		changes["suspended"] = 0
	}
	if len(changes) == 0 {
		return cur, moodle.Unchanged, nil
	}

	cur.TimeModified = now
	changes["timemodified"] = now
	if err := s.table(ctx, moodle.TableUser).Where("id = ?", cur.ID).Updates(changes).Error; err != nil {
		return nil, moodle.Unchanged, fmt.Errorf("update user %q: %w", spec.Username, err)
	}
	return cur, moodle.Updated, nil
}

// ListManaged returns the live accounts using the auth method, excluding
// the reserved guest and admin accounts.
func (s *Store) ListManaged(ctx context.Context, auth string) ([]models.User, error) {
	var out []models.User
	err := s.table(ctx, moodle.TableUser).
		Where("auth = ? AND deleted = 0 AND username NOT IN ?", auth, reservedUsernames).
		Order("id").
		Find(&out).Error
	return out, err
}

// IsAnonymized reports whether u has already been scrubbed.
func IsAnonymized(u models.User) bool {
	return strings.HasPrefix(u.Username, AnonymousPrefix)
}

// Anonymize scrubs the personal fields of an account in place. The account
// id, and therefore its history, is kept; the account is suspended and its
// password replaced by the hash of a random secret.
func (s *Store) Anonymize(ctx context.Context, u *models.User, now int64) error {
	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u.Username = AnonymousPrefix + uuid.NewString()
	u.FirstName = AnonymousName
	u.LastName = AnonymousName
	u.Email = ""
	u.IDNumber = ""
	u.City = ""
	u.Password = string(hash)
	u.Suspended = 1
	u.TimeModified = now

	err = s.table(ctx, moodle.TableUser).Where("id = ?", u.ID).Updates(map[string]any{
		"username":     u.Username,
		"firstname":    u.FirstName,
		"lastname":     u.LastName,
		"email":        u.Email,
		"idnumber":     u.IDNumber,
		"city":         u.City,
		"password":     u.Password,
		"suspended":    u.Suspended,
		"timemodified": now,
	}).Error
	if err != nil {
		return fmt.Errorf("anonymize user %d: %w", u.ID, err)
	}
	if err := s.db.WithContext(ctx).Exec(
		"DELETE FROM "+moodle.Table(s.db, moodle.TableInfoData)+" WHERE userid = ?", u.ID).Error; err != nil {
		return fmt.Errorf("anonymize user %d profile: %w", u.ID, err)
	}
	return nil
}

// Delete removes an account with its cohort memberships, role assignments,
// enrolments, profile data and user context.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	stmts := []struct {
		table string
		where string
		args  []any
	}{
		{moodle.TableCohortMembers, "userid = ?", []any{userID}},
		{moodle.TableRoleAssignment, "userid = ?", []any{userID}},
		{moodle.TableUserEnrolments, "userid = ?", []any{userID}},
		{moodle.TableInfoData, "userid = ?", []any{userID}},
		{moodle.TableContext, "contextlevel = ? AND instanceid = ?", []any{models.ContextUser, userID}},
		{moodle.TableUser, "id = ?", []any{userID}},
	}
	for _, st := range stmts {
		sql := "DELETE FROM " + moodle.Table(s.db, st.table) + " WHERE " + st.where
		if err := s.db.WithContext(ctx).Exec(sql, st.args...).Error; err != nil {
			return fmt.Errorf("delete user %d from %s: %w", userID, st.table, err)
		}
	}
	return nil
}
