// Package backup triggers the export of a course before the retention
// engine deletes it. The engine only needs the Exporter contract; the
// export itself is done by an external command.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Placeholders substituted in the command template.
const (
	PlaceholderCourseID    = "{courseid}"
	PlaceholderDestination = "{destination}"
)

var (
	// ErrDisabled is returned when no backup command is configured. A
	// course that cannot be backed up is never deleted.
	ErrDisabled = errors.New("course backup is not configured")
	// ErrNoArchive is returned when the command succeeded but produced no file.
	ErrNoArchive = errors.New("backup command produced no archive")
)

// Exporter backs up one course and returns the archive location.
type Exporter interface {
	Export(ctx context.Context, courseID int64) (string, error)
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, courseID int64) (string, error)

func (f ExporterFunc) Export(ctx context.Context, courseID int64) (string, error) {
	return f(ctx, courseID)
}

// Disabled is the Exporter used when no command is configured.
var Disabled Exporter = ExporterFunc(func(context.Context, int64) (string, error) {
	return "", ErrDisabled
})

// CommandExporter runs an external command per course, for instance the
// LMS command-line backup tool.
type CommandExporter struct {
	args        []string
	destination string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewCommandExporter parses command, a whitespace-separated template using
// {courseid} and {destination}. The archive of course N is expected at
// destination/backup-course-N.mbz.
func NewCommandExporter(command, destination string, timeout time.Duration, logger *zap.Logger) (*CommandExporter, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, ErrDisabled
	}
	if !strings.Contains(command, PlaceholderCourseID) {
		return nil, fmt.Errorf("backup command must contain %s", PlaceholderCourseID)
	}
	if destination == "" {
		destination = os.TempDir()
	}
	return &CommandExporter{args: args, destination: destination, timeout: timeout, logger: logger}, nil
}

// Archive returns the path where the archive of courseID is expected.
func (e *CommandExporter) Archive(courseID int64) string {
	return filepath.Join(e.destination, fmt.Sprintf("backup-course-%d.mbz", courseID))
}

// Export implements Exporter.
func (e *CommandExporter) Export(ctx context.Context, courseID int64) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	archive := e.Archive(courseID)
	replacer := strings.NewReplacer(
		PlaceholderCourseID, strconv.FormatInt(courseID, 10),
		PlaceholderDestination, archive,
	)
	args := make([]string, len(e.args))
	for i, a := range e.args {
		args[i] = replacer.Replace(a)
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("backup course %d: %w: %s", courseID, err, strings.TrimSpace(out.String()))
	}
	if _, err := os.Stat(archive); err != nil {
		return "", fmt.Errorf("backup course %d: %w: %s", courseID, ErrNoArchive, archive)
	}
	e.logger.Info("course backed up",
		zap.Int64("course_id", courseID),
		zap.String("archive", archive),
		zap.Duration("took", time.Since(start)))
	return archive, nil
}
