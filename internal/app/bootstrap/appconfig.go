// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds the process settings of the synchronization tool.
//
// These values come from environment variables (ESCOSYNC_*), configuration
// files, or command-line flags (loaded in LoadConfig). The structured
// synchronization settings (institutions, groupings, streams, retention
// policy) live in the YAML file named by SyncConfigPath and are decoded
// into Sync.
type AppConfig struct {
	// LMS database
	LMSDriver      string // mysql, postgres or sqlite
	LMSDSN         string
	LMSTablePrefix string // default mdl_
	LMSDebug       bool   // log every SQL statement

	// Directory
	LDAPURI           string
	LDAPBindDN        string
	LDAPBindPassword  string
	LDAPPeopleDN      string
	LDAPStructuresDN  string
	LDAPPageSize      int
	LDAPTLSSkipVerify bool
	DefaultMail       string // mail of people the directory has none for

	// Run
	CheckpointFile   string
	SyncConfigPath   string
	Mode             string // sync, retention, all or check-paths
	DryRun           bool
	PartitionRetries int
	RetryBaseDelay   time.Duration
	RunInterval      time.Duration // zero: run once and exit
	FullResync       []string      // partition keys or "all"; checkpoints reset before the first run

	// MongoDB audit trail (disabled when MongoURI is empty)
	MongoURI          string
	MongoDatabase     string
	AuditLogSync      string // all, db, log or off
	AuditLogRetention string
	AuditKeepDays     int // events older than this are purged at startup; 0 keeps everything

	// Course backup before retirement
	BackupCommand        string // template with {courseid} and {destination}
	BackupDir            string
	BackupGCSBucket      string
	BackupGCSPrefix      string
	BackupGCSCredentials string

	MetricsPushURL string

	// Timeouts (zero keeps the defaults)
	TimeoutConnect   time.Duration
	TimeoutQuery     time.Duration
	TimeoutPartition time.Duration
	TimeoutRetention time.Duration
	TimeoutBackup    time.Duration

	Sync SyncConfig
}
