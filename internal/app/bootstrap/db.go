// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/directory"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/audit"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/driver"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens the LMS database, the directory and, when configured, the
// MongoDB audit trail. Connections opened before a failure are closed.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (deps DBDeps, err error) {
	defer func() {
		if err != nil {
			_ = Shutdown(context.Background(), coreCfg, appCfg, deps, logger)
			deps = DBDeps{}
		}
	}()

	deps.LMS, err = moodle.Open(moodle.Config{
		Driver:      appCfg.LMSDriver,
		DSN:         appCfg.LMSDSN,
		TablePrefix: appCfg.LMSTablePrefix,
		Debug:       appCfg.LMSDebug,
	}, logger)
	if err != nil {
		return deps, fmt.Errorf("lms database: %w", err)
	}

	if driver.Mode(appCfg.Mode) != driver.ModeCheckPaths {
		deps.Directory, err = directory.Dial(directory.Config{
			URI:           appCfg.LDAPURI,
			BindDN:        appCfg.LDAPBindDN,
			BindPassword:  appCfg.LDAPBindPassword,
			PeopleDN:      appCfg.LDAPPeopleDN,
			StructuresDN:  appCfg.LDAPStructuresDN,
			PageSize:      uint32(appCfg.LDAPPageSize),
			DefaultMail:   appCfg.DefaultMail,
			DialTimeout:   timeouts.Connect(),
			TLSSkipVerify: appCfg.LDAPTLSSkipVerify,
		}, logger)
		if err != nil {
			return deps, fmt.Errorf("directory: %w", err)
		}
	}

	if appCfg.MongoURI == "" {
		logger.Info("audit trail store disabled (no mongo_uri)")
		return deps, nil
	}
	cctx, cancel := context.WithTimeout(ctx, timeouts.Connect())
	defer cancel()
	deps.MongoClient, err = mongo.Connect(cctx, options.Client().ApplyURI(appCfg.MongoURI))
	if err != nil {
		return deps, fmt.Errorf("mongodb: %w", err)
	}
	if err = deps.MongoClient.Ping(cctx, readpref.Primary()); err != nil {
		return deps, fmt.Errorf("mongodb ping: %w", err)
	}
	deps.MongoDatabase = deps.MongoClient.Database(appCfg.MongoDatabase)
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	return deps, nil
}

// EnsureSchema checks the LMS tables and creates the audit indexes.
// SQLite databases are migrated instead, which is how local runs and tests
// get a schema.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if appCfg.LMSDriver == moodle.DriverSQLite {
		if err := moodle.Migrate(deps.LMS); err != nil {
			return fmt.Errorf("migrate lms schema: %w", err)
		}
	} else if err := moodle.RequireTables(deps.LMS); err != nil {
		return err
	}

	if deps.MongoDatabase != nil {
		if err := audit.New(deps.MongoDatabase).EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("audit indexes: %w", err)
		}
	}
	return nil
}
