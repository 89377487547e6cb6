package audit_test

import (
	"testing"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/audit"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/testutil"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestMongo(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	event := audit.Event{
		RunID:     "run-1",
		Category:  audit.CategoryRetention,
		EventType: audit.EventAccountDeleted,
		UID:       "f1700ivh",
		Success:   true,
	}
	if err := store.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.Query(ctx, audit.QueryFilter{UID: "f1700ivh"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
}

func TestStore_QueryByRun(t *testing.T) {
	db := testutil.SetupTestMongo(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, e := range []audit.Event{
		{RunID: "run-a", Category: audit.CategorySync, EventType: audit.EventPartitionSynced, Partition: "0290009C", Success: true},
		{RunID: "run-a", Category: audit.CategorySync, EventType: audit.EventPartitionFailed, Partition: "0290010D"},
		{RunID: "run-b", Category: audit.CategorySync, EventType: audit.EventPartitionSynced, Partition: "0290009C", Success: true},
	} {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	events, err := store.Query(ctx, audit.QueryFilter{RunID: "run-a"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events for run-a, got %d", len(events))
	}

	n, err := store.CountByFilter(ctx, audit.QueryFilter{EventType: audit.EventPartitionFailed})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 failed partition, got %d", n)
	}
}

func TestStore_PurgeBefore(t *testing.T) {
	db := testutil.SetupTestMongo(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now()
	old := audit.Event{RunID: "old", Category: audit.CategorySync, EventType: audit.EventRunCompleted, Timestamp: now.Add(-48 * time.Hour)}
	recent := audit.Event{RunID: "new", Category: audit.CategorySync, EventType: audit.EventRunCompleted, Timestamp: now}
	if err := store.Log(ctx, old); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if err := store.Log(ctx, recent); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	removed, err := store.PurgeBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
}
