package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/moodle"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func TestLifecycle_ConfigFailure(t *testing.T) {
	h := Hooks
	h.LoadConfig = func(*zap.Logger) (*config.CoreConfig, AppConfig, error) {
		return nil, AppConfig{}, errors.New("boom")
	}
	h.ConnectDB = func(context.Context, *config.CoreConfig, AppConfig, *zap.Logger) (DBDeps, error) {
		t.Fatal("ConnectDB must not run after a config failure")
		return DBDeps{}, nil
	}
	if code := h.Run(context.Background(), zap.NewNop()); code != ExitFailure {
		t.Errorf("Run() = %d, want %d", code, ExitFailure)
	}
}

func TestLifecycle_InvalidConfig(t *testing.T) {
	h := Hooks
	h.LoadConfig = func(*zap.Logger) (*config.CoreConfig, AppConfig, error) {
		cfg := validAppConfig()
		cfg.Mode = "bogus"
		return &config.CoreConfig{}, cfg, nil
	}
	if code := h.Run(context.Background(), zap.NewNop()); code != ExitFailure {
		t.Errorf("Run() = %d, want %d", code, ExitFailure)
	}
}

func TestLifecycle_CheckPathsOnFreshDatabase(t *testing.T) {
	dir := t.TempDir()
	h := Hooks
	h.LoadConfig = func(*zap.Logger) (*config.CoreConfig, AppConfig, error) {
		cfg := validAppConfig()
		cfg.Mode = "check-paths"
		cfg.LDAPURI = ""
		cfg.LMSDSN = filepath.Join(dir, "lms.db")
		cfg.CheckpointFile = filepath.Join(dir, "checkpoints.txt")
		return &config.CoreConfig{Env: "prod"}, cfg, nil
	}

	var shutdown bool
	h.Shutdown = func(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
		shutdown = true
		if deps.Directory != nil {
			t.Error("check-paths mode should not connect to the directory")
		}
		return Shutdown(ctx, coreCfg, appCfg, deps, logger)
	}

	if code := h.Run(context.Background(), zap.NewNop()); code != 0 {
		t.Errorf("Run() = %d, want 0", code)
	}
	if !shutdown {
		t.Error("Shutdown was not called")
	}
}

func TestEnsureSchema_RequiresTablesOnServerDrivers(t *testing.T) {
	dir := t.TempDir()
	db, err := moodle.Open(moodle.Config{
		Driver:      moodle.DriverSQLite,
		DSN:         filepath.Join(dir, "empty.db"),
		TablePrefix: moodle.DefaultTablePrefix,
	}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer moodle.Close(db)

	cfg := validAppConfig()
	cfg.LMSDriver = moodle.DriverMySQL // pretend: no migration outside sqlite
	err = EnsureSchema(context.Background(), &config.CoreConfig{}, cfg, DBDeps{LMS: db}, zap.NewNop())
	if err == nil {
		t.Error("EnsureSchema should reject a database without the LMS tables")
	}
}
