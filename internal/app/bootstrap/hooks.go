// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/timeouts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// ExitFailure is returned when the process could not start a run at all.
const ExitFailure = 1

// Lifecycle lists the stages of a process, run in order by Run.
type Lifecycle struct {
	Name           string
	LoadConfig     func(*zap.Logger) (*config.CoreConfig, AppConfig, error)
	ValidateConfig func(*config.CoreConfig, AppConfig, *zap.Logger) error
	ConnectDB      func(context.Context, *config.CoreConfig, AppConfig, *zap.Logger) (DBDeps, error)
	EnsureSchema   func(context.Context, *config.CoreConfig, AppConfig, DBDeps, *zap.Logger) error
	Startup        func(context.Context, *config.CoreConfig, AppConfig, DBDeps, *zap.Logger) (*Runtime, error)
	Shutdown       func(context.Context, *config.CoreConfig, AppConfig, DBDeps, *zap.Logger) error
}

// Hooks wires the synchronization tool into its lifecycle.
var Hooks = Lifecycle{
	Name:           "escosync",
	LoadConfig:     LoadConfig,
	ValidateConfig: ValidateConfig,
	ConnectDB:      ConnectDB,
	EnsureSchema:   EnsureSchema,
	Startup:        Startup,
	Shutdown:       Shutdown,
}

// Run executes the lifecycle and returns the process exit code: 1 when
// startup fails, otherwise the error count of the (last) run.
func Run(ctx context.Context, logger *zap.Logger) int {
	return Hooks.Run(ctx, logger)
}

// Run executes the lifecycle stages in order.
func (h Lifecycle) Run(ctx context.Context, logger *zap.Logger) int {
	coreCfg, appCfg, err := h.LoadConfig(logger)
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		return ExitFailure
	}
	if coreCfg.Env == "dev" {
		if dev, err := zap.NewDevelopment(); err == nil {
			defer func() { _ = dev.Sync() }()
			logger = dev
		}
	}
	logger = logger.With(zap.String("app", h.Name))

	if err := h.ValidateConfig(coreCfg, appCfg, logger); err != nil {
		logger.Error("invalid config", zap.Error(err))
		return ExitFailure
	}
	timeouts.Configure(timeouts.Config{
		Connect:   appCfg.TimeoutConnect,
		Query:     appCfg.TimeoutQuery,
		Partition: appCfg.TimeoutPartition,
		Retention: appCfg.TimeoutRetention,
		Backup:    appCfg.TimeoutBackup,
	})

	deps, err := h.ConnectDB(ctx, coreCfg, appCfg, logger)
	if err != nil {
		logger.Error("connect failed", zap.Error(err))
		return ExitFailure
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), timeouts.Connect())
		defer cancel()
		if err := h.Shutdown(sctx, coreCfg, appCfg, deps, logger); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	if err := h.EnsureSchema(ctx, coreCfg, appCfg, deps, logger); err != nil {
		logger.Error("schema check failed", zap.Error(err))
		return ExitFailure
	}

	rt, err := h.Startup(ctx, coreCfg, appCfg, deps, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return ExitFailure
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close failed", zap.Error(err))
		}
	}()

	if appCfg.RunInterval <= 0 {
		return rt.RunOnce(ctx)
	}
	return runRepeatedly(ctx, rt, appCfg.RunInterval, logger)
}

// runRepeatedly runs until ctx is cancelled and returns the exit code of
// the last completed run.
func runRepeatedly(ctx context.Context, rt *Runtime, interval time.Duration, logger *zap.Logger) int {
	var last atomic.Int32
	s := workers.NewScheduler("sync", logger, interval, func(ctx context.Context) {
		last.Store(int32(rt.RunOnce(ctx)))
	})
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return int(last.Load())
}
