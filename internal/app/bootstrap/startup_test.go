package bootstrap

import (
	"testing"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/audit"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReportPreviousRun(t *testing.T) {
	db := testutil.SetupTestMongo(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	for _, e := range []audit.Event{
		{RunID: "run-1", Timestamp: now.Add(-2 * time.Hour), Category: audit.CategorySync, EventType: audit.EventRunCompleted, Success: true},
		{RunID: "run-2", Timestamp: now.Add(-time.Hour), Category: audit.CategorySync, EventType: audit.EventPartitionFailed, Partition: "0290009C"},
		{RunID: "run-2", Timestamp: now.Add(-time.Hour), Category: audit.CategorySync, EventType: audit.EventPartitionSynced, Partition: "0290010D", Success: true},
		{RunID: "run-2", Timestamp: now.Add(-time.Hour + time.Second), Category: audit.CategorySync, EventType: audit.EventRunCompleted,
			Details: map[string]string{"mode": "sync"}},
	} {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	core, logs := observer.New(zapcore.InfoLevel)
	reportPreviousRun(ctx, store, zap.New(core))

	entries := logs.FilterMessage("previous run had errors").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
	fields := entries[0].ContextMap()
	if fields["run_id"] != "run-2" {
		t.Errorf("run_id = %v, want run-2", fields["run_id"])
	}
	if fields["failed_partitions"] != int64(1) {
		t.Errorf("failed_partitions = %v, want 1", fields["failed_partitions"])
	}
	if fields["mode"] != "sync" {
		t.Errorf("mode = %v, want sync", fields["mode"])
	}
}

func TestReportPreviousRun_NoHistory(t *testing.T) {
	db := testutil.SetupTestMongo(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zapcore.DebugLevel)
	reportPreviousRun(ctx, audit.New(db), zap.New(core))
	if logs.Len() != 0 {
		t.Errorf("expected no output without history, got %v", logs.All())
	}
}
