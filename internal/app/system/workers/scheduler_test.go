package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("test", zap.NewNop(), 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Errorf("job ran after Stop: %d -> %d", after, runs.Load())
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	s := NewScheduler("blocking", zap.NewNop(), time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	s.Start(context.Background())
	<-started
	s.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled by Stop")
	}
}

func TestScheduler_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler("parent", zap.NewNop(), time.Hour, func(context.Context) {})
	s.Start(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after parent cancellation")
	}
	s.Stop()
}
