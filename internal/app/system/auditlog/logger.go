// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	DestAll = "all" // MongoDB + zap
	DestDB  = "db"  // MongoDB only
	DestLog = "log" // zap only
	DestOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Sync controls partition and run events.
	Sync string
	// Retention controls anonymization, deletion and course retirement events.
	Retention string
}

// Logger provides convenience methods for logging audit events.
// It logs to MongoDB (via audit.Store) and structured logs (via zap).
// A nil store disables the MongoDB destination.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
	runID  string
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// ForRun returns a copy of l that stamps every event with runID.
func (l *Logger) ForRun(runID string) *Logger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.runID = runID
	return &cp
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("run_id", event.RunID),
	}
	if event.Partition != "" {
		fields = append(fields, zap.String("partition", event.Partition))
	}
	if event.UID != "" {
		fields = append(fields, zap.String("uid", event.UID))
	}
	if event.CourseID != 0 {
		fields = append(fields, zap.Int64("course_id", event.CourseID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	var setting string
	switch event.Category {
	case audit.CategorySync:
		setting = l.config.Sync
	case audit.CategoryRetention:
		setting = l.config.Retention
	default:
		setting = DestAll
	}

	if setting == DestOff {
		return
	}
	if setting == DestAll || setting == DestLog {
		l.logToZap(event)
	}
	if (setting == DestAll || setting == DestDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Sync Events ---

// PartitionSynced logs a committed partition pass.
func (l *Logger) PartitionSynced(ctx context.Context, partition string, counts map[string]int) {
	details := make(map[string]string, len(counts))
	for k, v := range counts {
		details[k] = strconv.Itoa(v)
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySync,
		EventType: audit.EventPartitionSynced,
		Partition: partition,
		Success:   true,
		Details:   details,
	})
}

// PartitionFailed logs a partition whose pass was rolled back.
func (l *Logger) PartitionFailed(ctx context.Context, partition string, attempts int, err error) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySync,
		EventType:     audit.EventPartitionFailed,
		Partition:     partition,
		Success:       false,
		FailureReason: errString(err),
		Details: map[string]string{
			"attempts": strconv.Itoa(attempts),
		},
	})
}

// RunCompleted logs the end-of-run summary.
func (l *Logger) RunCompleted(ctx context.Context, mode string, errors int, counts map[string]int) {
	details := map[string]string{"mode": mode}
	for k, v := range counts {
		details[k] = strconv.Itoa(v)
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySync,
		EventType: audit.EventRunCompleted,
		Success:   errors == 0,
		Details:   details,
	})
}

// --- Retention Events ---

// AccountAnonymized logs the scrubbing of an account.
func (l *Logger) AccountAnonymized(ctx context.Context, uid, reason string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRetention,
		EventType: audit.EventAccountAnonymized,
		UID:       uid,
		Success:   true,
		Details:   map[string]string{"reason": reason},
	})
}

// AccountDeleted logs the deletion of an account.
func (l *Logger) AccountDeleted(ctx context.Context, uid, reason string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRetention,
		EventType: audit.EventAccountDeleted,
		UID:       uid,
		Success:   true,
		Details:   map[string]string{"reason": reason},
	})
}

// CourseRetired logs a course exported and deleted before its owner.
func (l *Logger) CourseRetired(ctx context.Context, uid string, courseID int64, archive string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryRetention,
		EventType: audit.EventCourseRetired,
		UID:       uid,
		CourseID:  courseID,
		Success:   true,
		Details:   map[string]string{"archive": archive},
	})
}

// CourseBackupFailed logs a course whose export failed; its owner is kept.
func (l *Logger) CourseBackupFailed(ctx context.Context, uid string, courseID int64, err error) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryRetention,
		EventType:     audit.EventCourseBackupFailed,
		UID:           uid,
		CourseID:      courseID,
		Success:       false,
		FailureReason: errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
