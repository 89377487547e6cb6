package auditlog_test

import (
	"errors"
	"testing"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/audit"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/auditlog"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// These should all be no-ops, not panic
	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.PartitionSynced(ctx, "0290009C", nil)
	logger.AccountDeleted(ctx, "f1700ivh", "force")
	if logger.ForRun("run") != nil {
		t.Error("ForRun on nil logger should return nil")
	}
}

func TestLogger_LogDestination(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{
		Sync:      auditlog.DestLog,
		Retention: auditlog.DestOff,
	}).ForRun("run-42")

	logger.PartitionSynced(ctx, "0290009C", map[string]int{"created": 2})
	logger.AccountAnonymized(ctx, "f1700ivh", "stale")

	entries := logs.FilterMessage("audit event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != audit.EventPartitionSynced {
		t.Errorf("event_type = %v", fields["event_type"])
	}
	if fields["run_id"] != "run-42" {
		t.Errorf("run_id = %v, want run-42", fields["run_id"])
	}
	if fields["detail_created"] != "2" {
		t.Errorf("detail_created = %v, want 2", fields["detail_created"])
	}
}

func TestLogger_FailuresLogAtWarn(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{
		Sync:      auditlog.DestAll,
		Retention: auditlog.DestAll,
	})

	logger.CourseBackupFailed(ctx, "f1700ivh", 12, errors.New("export exited 1"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	if entries[0].ContextMap()["failure_reason"] != "export exited 1" {
		t.Errorf("failure_reason = %v", entries[0].ContextMap()["failure_reason"])
	}
}

func TestLogger_Log_ConfigDB(t *testing.T) {
	db := testutil.SetupTestMongo(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(store, zap.New(core), auditlog.Config{
		Sync:      auditlog.DestDB,
		Retention: auditlog.DestDB,
	}).ForRun("run-db")

	logger.AccountDeleted(ctx, "f1700ivh", "force")

	events, err := store.Query(ctx, audit.QueryFilter{RunID: "run-db"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event in db, got %d", len(events))
	}
	if logs.Len() != 0 {
		t.Errorf("expected no zap output for db destination, got %d", logs.Len())
	}
}
