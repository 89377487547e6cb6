// internal/app/store/moodle/moodle.go
package moodle

// Terminology: Natural keys
//   - username: lowercased directory uid (accounts)
//   - idnumber: institution or grouping key (categories), forum prefix + key (private spaces),
//     "<strategy>:<scope>:<key>" (managed cohorts)

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultTablePrefix is the prefix LMS installations use unless configured otherwise.
const DefaultTablePrefix = "mdl_"

// Config describes how to reach the LMS database.
type Config struct {
	Driver      string
	DSN         string
	TablePrefix string
	Debug       bool
}

// ErrUnknownDriver is returned by Open for drivers other than mysql, postgres and sqlite.
var ErrUnknownDriver = errors.New("unknown lms driver")

// Open connects to the LMS database. Table names are resolved through the
// naming strategy so every store honours the configured prefix.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverMySQL:
		dialector = gormmysql.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	gormLog := gormlogger.Discard
	if cfg.Debug {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   cfg.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		// SQLite only supports one writer at a time.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetMaxOpenConns(16)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if logger != nil {
		logger.Info("connected to lms database",
			zap.String("driver", cfg.Driver),
			zap.String("table_prefix", cfg.TablePrefix))
	}
	return db, nil
}

// Table returns the prefixed name of an LMS table.
func Table(db *gorm.DB, name string) string {
	return db.NamingStrategy.TableName(name)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Unix converts t to the LMS timestamp representation.
func Unix(t time.Time) int64 {
	return t.Unix()
}
