// Package pass carries the per-partition state of one synchronization pass:
// the partition key, the clock captured before any write, and the counters
// and record errors the pass accumulates.
package pass

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pass is created once per attempt at synchronizing a partition and threaded
// through every call of that attempt. It is not safe for concurrent use.
type Pass struct {
	ID  string
	Key string
	Now time.Time

	counts map[string]int
	errors []RecordError
}

// New returns a pass for key whose clock is now, truncated to the second.
func New(key string, now time.Time) *Pass {
	return &Pass{
		ID:     uuid.NewString(),
		Key:    key,
		Now:    now.UTC().Truncate(time.Second),
		counts: make(map[string]int),
	}
}

// Unix returns the captured clock as LMS seconds.
func (p *Pass) Unix() int64 {
	return p.Now.Unix()
}

// Logger returns l annotated with the partition and pass id.
func (p *Pass) Logger(l *zap.Logger) *zap.Logger {
	return l.With(zap.String("partition", p.Key), zap.String("pass_id", p.ID))
}

// Add increments counter name by n.
func (p *Pass) Add(name string, n int) {
	if n == 0 {
		return
	}
	p.counts[name] += n
}

// Count returns the value of counter name.
func (p *Pass) Count(name string) int {
	return p.counts[name]
}

// Counts returns a copy of every counter.
func (p *Pass) Counts() map[string]int {
	out := make(map[string]int, len(p.counts)+1)
	for k, v := range p.counts {
		out[k] = v
	}
	if len(p.errors) > 0 {
		out[CountRecordErrors] = len(p.errors)
	}
	return out
}

// CountRecordErrors is the counter name under which Counts reports record errors.
const CountRecordErrors = "record_errors"

// RecordError is a failure confined to one directory record or LMS entity.
// The pass continues after it.
type RecordError struct {
	Kind string // "person", "cohort", "directory", ...
	Key  string
	Err  error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Key, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// Fail records a per-record error.
func (p *Pass) Fail(kind, key string, err error) {
	p.errors = append(p.errors, RecordError{Kind: kind, Key: key, Err: err})
}

// Errors returns the record errors in the order they were recorded.
func (p *Pass) Errors() []RecordError {
	return p.errors
}

// Fields renders the counters as zap fields, sorted by name.
func (p *Pass) Fields() []zap.Field {
	counts := p.Counts()
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Strings(names)
	fields := make([]zap.Field, 0, len(names))
	for _, k := range names {
		fields = append(fields, zap.Int(k, counts[k]))
	}
	return fields
}
