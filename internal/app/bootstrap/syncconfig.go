// internal/app/bootstrap/syncconfig.go
package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/retention"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/accounts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/cohorts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/driver"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable of the tool.
const EnvPrefix = "ESCOSYNC"

// SyncConfig is the structured synchronization configuration. Every scalar
// can be overridden by ESCOSYNC_<SECTION>_<FIELD>, for instance
// ESCOSYNC_RETENTION_BACKUP_DELAY_DAYS. Lists of records (groupings,
// streams) can only be set in the file.
type SyncConfig struct {
	Institutions []string         `yaml:"institutions" split_words:"true"`
	Groupings    []GroupingConfig `yaml:"groupings"    ignored:"true"`
	Streams      []StreamConfig   `yaml:"streams"      ignored:"true"`
	Cohorts      CohortsConfig    `yaml:"cohorts"      split_words:"true"`
	Accounts     AccountsConfig   `yaml:"accounts"     split_words:"true"`
	Retention    RetentionConfig  `yaml:"retention"    split_words:"true"`
}

// GroupingConfig merges several institutions under one category.
type GroupingConfig struct {
	Key   string   `yaml:"key"`
	Name  string   `yaml:"name"`
	Codes []string `yaml:"codes"`
}

// StreamConfig is a named directory filter synchronized into one cohort.
type StreamConfig struct {
	Name        string `yaml:"name"`
	Filter      string `yaml:"filter"`
	Cohort      string `yaml:"cohort"`
	Description string `yaml:"description"`
}

// CohortsConfig holds the cohort name templates; %s is the class, level or
// institution name.
type CohortsConfig struct {
	ClassStudents string `yaml:"class_students" split_words:"true"`
	ClassTeachers string `yaml:"class_teachers" split_words:"true"`
	Level         string `yaml:"level"          split_words:"true"`
	Establishment string `yaml:"establishment"  split_words:"true"`
}

// AccountsConfig controls the accounts and private spaces.
type AccountsConfig struct {
	Auth             string   `yaml:"auth"               split_words:"true"`
	Lang             string   `yaml:"lang"               split_words:"true"`
	Country          string   `yaml:"country"            split_words:"true"`
	Timezone         string   `yaml:"timezone"           split_words:"true"`
	ProfileField     string   `yaml:"profile_field"      split_words:"true"`
	ProfileFieldName string   `yaml:"profile_field_name" split_words:"true"`
	ForumPrefix      string   `yaml:"forum_prefix"       split_words:"true"`
	ForumName        string   `yaml:"forum_name"         split_words:"true"`
	CreatorRole      string   `yaml:"creator_role"       split_words:"true"`
	TeacherRole      string   `yaml:"teacher_role"       split_words:"true"`
	ManagerRole      string   `yaml:"manager_role"       split_words:"true"`
	DirectorProfiles []string `yaml:"director_profiles"  split_words:"true"`
}

// RetentionConfig is the retention policy, thresholds in days.
type RetentionConfig struct {
	StudentAnonymizeAfterDays int      `yaml:"student_anonymize_after_days" split_words:"true"`
	StudentDeleteAfterDays    int      `yaml:"student_delete_after_days"    split_words:"true"`
	TeacherAnonymizeAfterDays int      `yaml:"teacher_anonymize_after_days" split_words:"true"`
	TeacherDeleteAfterDays    int      `yaml:"teacher_delete_after_days"    split_words:"true"`
	ForceDeleteAfterDays      int      `yaml:"force_delete_after_days"      split_words:"true"`
	BackupDelayDays           int      `yaml:"backup_delay_days"            split_words:"true"`
	Undeletable               []string `yaml:"undeletable"                  split_words:"true"`
	TeacherRoles              []string `yaml:"teacher_roles"                split_words:"true"`
	OwnerRoles                []string `yaml:"owner_roles"                  split_words:"true"`
}

// DefaultSyncConfig returns the settings used when the file is silent.
func DefaultSyncConfig() SyncConfig {
	a := accounts.DefaultConfig()
	t := cohorts.DefaultTemplates()
	p := retention.DefaultPolicy()
	return SyncConfig{
		Cohorts: CohortsConfig{
			ClassStudents: t.ClassStudents,
			ClassTeachers: t.ClassTeachers,
			Level:         t.Level,
			Establishment: t.Establishment,
		},
		Accounts: AccountsConfig{
			Auth:             a.Auth,
			Lang:             a.Lang,
			Country:          a.Country,
			Timezone:         a.Timezone,
			ProfileField:     a.ProfileField,
			ProfileFieldName: a.ProfileFieldName,
			ForumPrefix:      a.ForumPrefix,
			ForumName:        a.ForumName,
			CreatorRole:      a.CreatorRole,
			TeacherRole:      a.TeacherRole,
			ManagerRole:      a.ManagerRole,
			DirectorProfiles: a.DirectorProfiles,
		},
		Retention: RetentionConfig{
			StudentAnonymizeAfterDays: days(p.Student.AnonymizeAfter),
			StudentDeleteAfterDays:    days(p.Student.DeleteAfter),
			TeacherAnonymizeAfterDays: days(p.Teacher.AnonymizeAfter),
			TeacherDeleteAfterDays:    days(p.Teacher.DeleteAfter),
			ForceDeleteAfterDays:      days(p.ForceDeleteAfter),
			BackupDelayDays:           days(p.BackupDelay),
			TeacherRoles:              p.TeacherRoles,
			OwnerRoles:                p.OwnerRoles,
		},
	}
}

func days(d time.Duration) int {
	return int(d / retention.Day)
}

// LoadSyncConfig reads the YAML file at path over the defaults, then
// applies the ESCOSYNC_* environment overrides. An empty path skips the file.
func LoadSyncConfig(path string) (SyncConfig, error) {
	cfg := DefaultSyncConfig()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read sync config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(buf))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse sync config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("sync config environment: %w", err)
	}
	cfg.Institutions = normalize.Codes(cfg.Institutions)
	for i := range cfg.Groupings {
		cfg.Groupings[i].Codes = normalize.Codes(cfg.Groupings[i].Codes)
	}
	return cfg, nil
}

// Validate checks the configuration against the run mode.
func (c SyncConfig) Validate(mode driver.Mode) error {
	if mode.Syncs() && len(c.Institutions) == 0 {
		return errors.New("no institution configured")
	}

	owner := make(map[string]string)
	keys := make(map[string]struct{})
	for _, g := range c.Groupings {
		if g.Key == "" {
			return errors.New("grouping without a key")
		}
		if _, dup := keys[g.Key]; dup {
			return fmt.Errorf("grouping %s declared twice", g.Key)
		}
		keys[g.Key] = struct{}{}
		if len(g.Codes) == 0 {
			return fmt.Errorf("grouping %s has no institution", g.Key)
		}
		for _, code := range g.Codes {
			if other, ok := owner[code]; ok {
				return fmt.Errorf("institution %s is listed in groupings %s and %s", code, other, g.Key)
			}
			owner[code] = g.Key
		}
	}

	names := make(map[string]struct{})
	for _, s := range c.Streams {
		if s.Name == "" || s.Filter == "" {
			return errors.New("stream needs a name and a filter")
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("stream %s declared twice", s.Name)
		}
		names[s.Name] = struct{}{}
	}

	if mode.Retains() {
		if err := c.Policy().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GroupingList converts the groupings.
func (c SyncConfig) GroupingList() models.Groupings {
	out := make(models.Groupings, 0, len(c.Groupings))
	for _, g := range c.Groupings {
		out = append(out, models.Grouping{Key: g.Key, Name: g.Name, Codes: g.Codes})
	}
	return out
}

// AccountsConfig returns the settings of the account synchronization.
func (c SyncConfig) AccountsConfig() accounts.Config {
	a := c.Accounts
	return accounts.Config{
		Auth:             a.Auth,
		Lang:             a.Lang,
		Country:          a.Country,
		Timezone:         a.Timezone,
		ProfileField:     a.ProfileField,
		ProfileFieldName: a.ProfileFieldName,
		ForumPrefix:      a.ForumPrefix,
		ForumName:        a.ForumName,
		CreatorRole:      a.CreatorRole,
		TeacherRole:      a.TeacherRole,
		ManagerRole:      a.ManagerRole,
		DirectorProfiles: a.DirectorProfiles,
		Groupings:        c.GroupingList(),
	}
}

// Templates returns the cohort name templates.
func (c SyncConfig) Templates() cohorts.Templates {
	return cohorts.Templates{
		ClassStudents: c.Cohorts.ClassStudents,
		ClassTeachers: c.Cohorts.ClassTeachers,
		Level:         c.Cohorts.Level,
		Establishment: c.Cohorts.Establishment,
	}
}

// StreamList converts the streams.
func (c SyncConfig) StreamList() []driver.Stream {
	out := make([]driver.Stream, 0, len(c.Streams))
	for _, s := range c.Streams {
		out = append(out, driver.Stream{Name: s.Name, Filter: s.Filter, CohortName: s.Cohort, Description: s.Description})
	}
	return out
}

// Policy returns the retention policy. Private spaces are never retired
// with their owner.
func (c SyncConfig) Policy() retention.Policy {
	r := c.Retention
	return retention.Policy{
		Student: retention.Thresholds{
			AnonymizeAfter: time.Duration(r.StudentAnonymizeAfterDays) * retention.Day,
			DeleteAfter:    time.Duration(r.StudentDeleteAfterDays) * retention.Day,
		},
		Teacher: retention.Thresholds{
			AnonymizeAfter: time.Duration(r.TeacherAnonymizeAfterDays) * retention.Day,
			DeleteAfter:    time.Duration(r.TeacherDeleteAfterDays) * retention.Day,
		},
		ForceDeleteAfter: time.Duration(r.ForceDeleteAfterDays) * retention.Day,
		BackupDelay:      time.Duration(r.BackupDelayDays) * retention.Day,
		Undeletable:      r.Undeletable,
		TeacherRoles:     r.TeacherRoles,
		OwnerRoles:       r.OwnerRoles,
		ManagedAuth:      c.Accounts.Auth,
		ProtectedPrefix:  c.Accounts.ForumPrefix,
	}
}
