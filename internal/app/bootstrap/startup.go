// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/backup"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/retention"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/audit"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/checkpoints"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/sync/driver"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/auditlog"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/metrics"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Runtime is what Startup assembles: a driver ready to run, plus the
// resources to release once the process is done with it.
type Runtime struct {
	Driver      *driver.Driver
	Checkpoints *checkpoints.Store
	Metrics     *metrics.Metrics

	closers []func() error
}

// RunOnce executes one run and returns its process exit code.
func (r *Runtime) RunOnce(ctx context.Context) int {
	return r.Driver.Run(ctx).ExitCode()
}

// Close releases what Startup opened.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Startup runs one-time initialization after connections and schema setup
// are complete: checkpoints, metrics, the audit trail, the course exporter
// and the retention engine are wired into a driver.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Runtime, error) {
	timeouts.Log(logger)
	mode := driver.Mode(appCfg.Mode)

	cp, err := checkpoints.Open(appCfg.CheckpointFile)
	if err != nil {
		return nil, fmt.Errorf("checkpoints: %w", err)
	}
	logger.Info("checkpoints loaded",
		zap.String("file", cp.Path()),
		zap.Strings("partitions", cp.Keys()))

	rt := &Runtime{Checkpoints: cp, Metrics: metrics.New()}

	var store *audit.Store
	if deps.MongoDatabase != nil {
		store = audit.New(deps.MongoDatabase)
		purgeAudit(ctx, store, appCfg.AuditKeepDays, logger)
		reportPreviousRun(ctx, store, logger)
	}
	auditLog := auditlog.New(store, logger, auditlog.Config{
		Sync:      appCfg.AuditLogSync,
		Retention: appCfg.AuditLogRetention,
	})

	ddeps := driver.Deps{
		DB:          deps.LMS,
		Checkpoints: cp,
		Metrics:     rt.Metrics,
		Audit:       auditLog,
		Logger:      logger,
	}
	if deps.Directory != nil {
		ddeps.Directory = deps.Directory
	}

	if mode.Retains() && deps.Directory != nil {
		exporter, err := buildExporter(ctx, appCfg, rt, logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		ddeps.Retention = retention.New(deps.LMS, deps.Directory, appCfg.Sync.Policy(), exporter, logger, retention.Options{
			DryRun:  appCfg.DryRun,
			Metrics: rt.Metrics,
			Audit:   auditLog,
		})
	}

	rt.Driver = driver.New(driver.Config{
		Mode:           mode,
		Institutions:   appCfg.Sync.Institutions,
		Streams:        appCfg.Sync.StreamList(),
		Accounts:       appCfg.Sync.AccountsConfig(),
		Templates:      appCfg.Sync.Templates(),
		DryRun:         appCfg.DryRun,
		Retries:        appCfg.PartitionRetries,
		RetryBaseDelay: appCfg.RetryBaseDelay,
		MetricsPushURL: appCfg.MetricsPushURL,
		FullResync:     appCfg.FullResync,
	}, ddeps)

	logger.Info("startup complete",
		zap.String("mode", appCfg.Mode),
		zap.Bool("dry_run", appCfg.DryRun),
		zap.String("env", coreCfg.Env))
	return rt, nil
}

// buildExporter returns the course exporter retention uses before deleting
// a course: the backup command, optionally uploading to Cloud Storage.
func buildExporter(ctx context.Context, appCfg AppConfig, rt *Runtime, logger *zap.Logger) (backup.Exporter, error) {
	var exporter backup.Exporter = backup.Disabled
	cmd, err := backup.NewCommandExporter(appCfg.BackupCommand, appCfg.BackupDir, timeouts.Backup(), logger)
	switch {
	case errors.Is(err, backup.ErrDisabled):
		logger.Warn("course backup disabled; owned courses block account deletion")
	case err != nil:
		return nil, fmt.Errorf("backup command: %w", err)
	default:
		exporter = cmd
	}

	if appCfg.BackupGCSBucket == "" {
		return exporter, nil
	}
	up, err := backup.NewGCSUploader(ctx, exporter, appCfg.BackupGCSBucket, appCfg.BackupGCSPrefix, appCfg.BackupGCSCredentials, logger)
	if err != nil {
		return nil, fmt.Errorf("backup bucket: %w", err)
	}
	rt.closers = append(rt.closers, up.Close)
	return up, nil
}

// purgeAudit drops audit events older than keepDays. A failure is logged
// and does not prevent the run.
func purgeAudit(ctx context.Context, store *audit.Store, keepDays int, logger *zap.Logger) {
	if keepDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-time.Duration(keepDays) * retention.Day)
	n, err := store.PurgeBefore(ctx, cutoff)
	if err != nil {
		logger.Warn("audit purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("purged old audit events", zap.Int64("count", n), zap.Time("before", cutoff))
	}
}

// reportPreviousRun logs the outcome of the last recorded run.
func reportPreviousRun(ctx context.Context, store *audit.Store, logger *zap.Logger) {
	last, err := store.Query(ctx, audit.QueryFilter{EventType: audit.EventRunCompleted, Limit: 1})
	if err != nil {
		logger.Warn("previous run not read", zap.Error(err))
		return
	}
	if len(last) == 0 {
		return
	}
	prev := last[0]
	failed, err := store.CountByFilter(ctx, audit.QueryFilter{RunID: prev.RunID, EventType: audit.EventPartitionFailed})
	if err != nil {
		logger.Warn("previous run not read", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("run_id", prev.RunID),
		zap.Time("completed", prev.Timestamp),
		zap.String("mode", prev.Details["mode"]),
		zap.Int64("failed_partitions", failed),
	}
	if failed > 0 || !prev.Success {
		logger.Warn("previous run had errors", fields...)
		return
	}
	logger.Info("previous run succeeded", fields...)
}
