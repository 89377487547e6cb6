package bootstrap

import (
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func validAppConfig() AppConfig {
	sync := DefaultSyncConfig()
	sync.Institutions = []string{"0290009C"}
	return AppConfig{
		LMSDriver:         moodle.DriverSQLite,
		LMSDSN:            "file::memory:",
		LMSTablePrefix:    moodle.DefaultTablePrefix,
		LDAPURI:           "ldap://localhost:389",
		Mode:              "sync",
		AuditLogSync:      "all",
		AuditLogRetention: "log",
		PartitionRetries:  2,
		Sync:              sync,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AppConfig)
		ok     bool
	}{
		{"valid", func(*AppConfig) {}, true},
		{"unknown mode", func(c *AppConfig) { c.Mode = "everything" }, false},
		{"unknown driver", func(c *AppConfig) { c.LMSDriver = "oracle" }, false},
		{"missing dsn", func(c *AppConfig) { c.LMSDSN = "" }, false},
		{"bad prefix", func(c *AppConfig) { c.LMSTablePrefix = "mdl; drop" }, false},
		{"empty prefix", func(c *AppConfig) { c.LMSTablePrefix = "" }, true},
		{"missing ldap uri", func(c *AppConfig) { c.LDAPURI = "" }, false},
		{"check-paths needs no directory", func(c *AppConfig) {
			c.LDAPURI = ""
			c.Mode = "check-paths"
		}, true},
		{"bad mongo uri", func(c *AppConfig) { c.MongoURI = "http://localhost" }, false},
		{"bad audit destination", func(c *AppConfig) { c.AuditLogRetention = "syslog" }, false},
		{"negative retries", func(c *AppConfig) { c.PartitionRetries = -1 }, false},
		{"invalid sync config", func(c *AppConfig) { c.Sync.Institutions = nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.modify(&cfg)
			err := ValidateConfig(&config.CoreConfig{}, cfg, zap.NewNop())
			if tt.ok && err != nil {
				t.Errorf("ValidateConfig() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("ValidateConfig() = nil, want an error")
			}
		})
	}
}
