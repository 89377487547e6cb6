// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/directory"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/driver"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys of the tool.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: lms_dsn, ldap_uri, etc.
//   - Environment variables: ESCOSYNC_LMS_DSN, ESCOSYNC_LDAP_URI, etc.
//   - Command-line flags: --lms_dsn, --ldap_uri, etc.
var appConfigKeys = []config.AppKey{
	// LMS database
	{Name: "lms_driver", Default: moodle.DriverMySQL, Desc: "LMS database driver: 'mysql', 'postgres' or 'sqlite'"},
	{Name: "lms_dsn", Default: "", Desc: "LMS database DSN"},
	{Name: "lms_table_prefix", Default: moodle.DefaultTablePrefix, Desc: "LMS table prefix"},
	{Name: "lms_debug", Default: false, Desc: "Log every SQL statement"},

	// Directory
	{Name: "ldap_uri", Default: "ldap://localhost:389", Desc: "Directory URI (ldap:// or ldaps://)"},
	{Name: "ldap_bind_dn", Default: "", Desc: "Directory bind DN (blank for anonymous)"},
	{Name: "ldap_bind_password", Default: "", Desc: "Directory bind password"},
	{Name: "ldap_people_dn", Default: "ou=people,dc=esco-centre,dc=fr", Desc: "Base DN of people"},
	{Name: "ldap_structures_dn", Default: "ou=structures,dc=esco-centre,dc=fr", Desc: "Base DN of institutions"},
	{Name: "ldap_page_size", Default: directory.DefaultPageSize, Desc: "Directory paged search size"},
	{Name: "ldap_tls_skip_verify", Default: false, Desc: "Skip TLS certificate verification (tests only)"},
	{Name: "default_mail", Default: "noreply@esco-centre.fr", Desc: "Mail of people without one in the directory"},

	// Run
	{Name: "checkpoint_file", Default: "checkpoints.txt", Desc: "Checkpoint file (one KEY=timestamp line per partition)"},
	{Name: "sync_config", Default: "", Desc: "YAML file with institutions, groupings, streams and retention policy"},
	{Name: "mode", Default: string(driver.ModeSync), Desc: "Run mode: 'sync', 'retention', 'all' or 'check-paths'"},
	{Name: "dry_run", Default: false, Desc: "Compute and log changes without writing"},
	{Name: "partition_retries", Default: 2, Desc: "Retries of a failed partition pass"},
	{Name: "retry_base_delay", Default: "5s", Desc: "Delay before the first retry (doubles each retry)"},
	{Name: "run_interval", Default: "0s", Desc: "Repeat the run at this interval (0 runs once)"},
	{Name: "full_resync", Default: []string{}, Desc: "Partition keys (or 'all') refetched in full by the next run"},

	// Audit trail
	{Name: "mongo_uri", Default: "", Desc: "MongoDB URI of the audit trail (blank disables it)"},
	{Name: "mongo_database", Default: "escosync", Desc: "MongoDB database name"},
	{Name: "audit_log_sync", Default: auditlog.DestAll, Desc: "Sync event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_retention", Default: auditlog.DestAll, Desc: "Retention event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_keep_days", Default: 730, Desc: "Purge audit events older than this many days (0 keeps everything)"},

	// Course backup
	{Name: "backup_command", Default: "", Desc: "Course backup command with {courseid} and {destination}"},
	{Name: "backup_dir", Default: "", Desc: "Directory receiving course archives"},
	{Name: "backup_gcs_bucket", Default: "", Desc: "Cloud Storage bucket receiving course archives"},
	{Name: "backup_gcs_prefix", Default: "courses", Desc: "Object prefix in the bucket"},
	{Name: "backup_gcs_credentials", Default: "", Desc: "Service account file (blank uses ambient credentials)"},

	{Name: "metrics_push_url", Default: "", Desc: "Prometheus Pushgateway URL (blank disables the push)"},

	// Timeouts
	{Name: "timeout_connect", Default: "0s", Desc: "Connection timeout (0 keeps the default)"},
	{Name: "timeout_query", Default: "0s", Desc: "Directory search timeout"},
	{Name: "timeout_partition", Default: "0s", Desc: "Partition pass timeout"},
	{Name: "timeout_retention", Default: "0s", Desc: "Retention pass timeout"},
	{Name: "timeout_backup", Default: "0s", Desc: "Course backup timeout"},
}

// LoadConfig loads WAFFLE core config, the process settings and the
// synchronization file they point to.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, ESCOSYNC_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		LMSDriver:      appValues.String("lms_driver"),
		LMSDSN:         appValues.String("lms_dsn"),
		LMSTablePrefix: appValues.String("lms_table_prefix"),
		LMSDebug:       appValues.Bool("lms_debug"),

		LDAPURI:           appValues.String("ldap_uri"),
		LDAPBindDN:        appValues.String("ldap_bind_dn"),
		LDAPBindPassword:  appValues.String("ldap_bind_password"),
		LDAPPeopleDN:      appValues.String("ldap_people_dn"),
		LDAPStructuresDN:  appValues.String("ldap_structures_dn"),
		LDAPPageSize:      appValues.Int("ldap_page_size"),
		LDAPTLSSkipVerify: appValues.Bool("ldap_tls_skip_verify"),
		DefaultMail:       appValues.String("default_mail"),

		CheckpointFile:   appValues.String("checkpoint_file"),
		SyncConfigPath:   appValues.String("sync_config"),
		Mode:             appValues.String("mode"),
		DryRun:           appValues.Bool("dry_run"),
		PartitionRetries: appValues.Int("partition_retries"),
		RetryBaseDelay:   appValues.Duration("retry_base_delay", 5*time.Second),
		RunInterval:      appValues.Duration("run_interval", 0),
		FullResync:       appValues.StringSlice("full_resync"),

		MongoURI:          appValues.String("mongo_uri"),
		MongoDatabase:     appValues.String("mongo_database"),
		AuditLogSync:      appValues.String("audit_log_sync"),
		AuditLogRetention: appValues.String("audit_log_retention"),
		AuditKeepDays:     appValues.Int("audit_keep_days"),

		BackupCommand:        appValues.String("backup_command"),
		BackupDir:            appValues.String("backup_dir"),
		BackupGCSBucket:      appValues.String("backup_gcs_bucket"),
		BackupGCSPrefix:      appValues.String("backup_gcs_prefix"),
		BackupGCSCredentials: appValues.String("backup_gcs_credentials"),

		MetricsPushURL: appValues.String("metrics_push_url"),

		TimeoutConnect:   appValues.Duration("timeout_connect", 0),
		TimeoutQuery:     appValues.Duration("timeout_query", 0),
		TimeoutPartition: appValues.Duration("timeout_partition", 0),
		TimeoutRetention: appValues.Duration("timeout_retention", 0),
		TimeoutBackup:    appValues.Duration("timeout_backup", 0),
	}

	appCfg.Sync, err = LoadSyncConfig(appCfg.SyncConfigPath)
	if err != nil {
		return nil, AppConfig{}, err
	}
	logger.Info("sync config loaded",
		zap.String("file", appCfg.SyncConfigPath),
		zap.Int("institutions", len(appCfg.Sync.Institutions)),
		zap.Int("groupings", len(appCfg.Sync.Groupings)),
		zap.Int("streams", len(appCfg.Sync.Streams)))

	return coreCfg, appCfg, nil
}

var tablePrefixPattern = regexp.MustCompile(`^[a-z0-9_]*$`)

var auditDestinations = map[string]struct{}{
	auditlog.DestAll: {}, auditlog.DestDB: {}, auditlog.DestLog: {}, auditlog.DestOff: {},
}

// ValidateConfig rejects a configuration before any directory or store
// connection is attempted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	mode := driver.Mode(appCfg.Mode)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", appCfg.Mode)
	}

	switch appCfg.LMSDriver {
	case moodle.DriverMySQL, moodle.DriverPostgres, moodle.DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", moodle.ErrUnknownDriver, appCfg.LMSDriver)
	}
	if appCfg.LMSDSN == "" {
		return errors.New("lms_dsn is required")
	}
	if !tablePrefixPattern.MatchString(appCfg.LMSTablePrefix) {
		return fmt.Errorf("lms_table_prefix %q may only contain [a-z0-9_]", appCfg.LMSTablePrefix)
	}

	if mode != driver.ModeCheckPaths && appCfg.LDAPURI == "" {
		return errors.New("ldap_uri is required")
	}
	if appCfg.LDAPPageSize < 0 {
		return errors.New("ldap_page_size must not be negative")
	}

	if appCfg.MongoURI != "" {
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
	}
	for key, v := range map[string]string{
		"audit_log_sync":      appCfg.AuditLogSync,
		"audit_log_retention": appCfg.AuditLogRetention,
	} {
		if _, ok := auditDestinations[v]; !ok {
			return fmt.Errorf("%s must be 'all', 'db', 'log' or 'off', got %q", key, v)
		}
	}

	if appCfg.AuditKeepDays < 0 {
		return errors.New("audit_keep_days must not be negative")
	}
	if appCfg.PartitionRetries < 0 {
		return errors.New("partition_retries must not be negative")
	}
	if appCfg.RunInterval < 0 {
		return errors.New("run_interval must not be negative")
	}

	if err := appCfg.Sync.Validate(mode); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}
	return nil
}
