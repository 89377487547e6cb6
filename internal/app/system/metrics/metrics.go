// Package metrics exposes run counters for the synchronization tool and
// pushes them to a Prometheus Pushgateway at the end of each run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Label values.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"

	ChangeAdded     = "added"
	ChangeRemoved   = "removed"
	ChangeDissolved = "dissolved"
	ChangeDeleted   = "deleted"
	ChangeSkipped   = "skipped"

	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

// JobName is the Pushgateway job label.
const JobName = "escosync"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	Accounts      *prometheus.CounterVec
	CohortChanges *prometheus.CounterVec
	Partitions    *prometheus.CounterVec
	Verdicts      *prometheus.CounterVec
	LastRun       prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Accounts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escosync_accounts_total",
			Help: "LMS accounts processed by outcome",
		}, []string{"outcome"}),
		CohortChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escosync_cohort_changes_total",
			Help: "Cohort membership changes by kind",
		}, []string{"change"}),
		Partitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escosync_partitions_total",
			Help: "Partition passes by result",
		}, []string{"result"}),
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escosync_retention_verdicts_total",
			Help: "Retention decisions by verdict",
		}, []string{"verdict"}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "escosync_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Account counts one account outcome. Safe on a nil receiver.
func (m *Metrics) Account(outcome string) {
	if m == nil {
		return
	}
	m.Accounts.WithLabelValues(outcome).Inc()
}

// CohortChange adds n cohort changes of one kind.
func (m *Metrics) CohortChange(change string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CohortChanges.WithLabelValues(change).Add(float64(n))
}

// Partition counts a partition result.
func (m *Metrics) Partition(result string) {
	if m == nil {
		return
	}
	m.Partitions.WithLabelValues(result).Inc()
}

// Verdict counts a retention decision.
func (m *Metrics) Verdict(verdict string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(verdict).Inc()
}

// RunCompleted records the completion time of a run.
func (m *Metrics) RunCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.LastRun.Set(float64(at.Unix()))
}

// Push sends every collector to the Pushgateway at url. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, JobName).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
