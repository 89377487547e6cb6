// internal/app/system/workers/scheduler.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

// Scheduler runs a job immediately and then on every tick of its interval.
// Runs never overlap: a tick that fires while the job is still running is
// dropped by the ticker.
type Scheduler struct {
	name     string
	job      Job
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewScheduler creates a scheduler for job.
//
// Parameters:
//   - name: used in log lines
//   - logger: zap logger for logging
//   - interval: delay between the start of two runs (e.g., 1 hour)
//   - job: the work to run
func NewScheduler(name string, logger *zap.Logger, interval time.Duration, job Job) *Scheduler {
	return &Scheduler{
		name:     name,
		job:      job,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the loop. The job receives a context cancelled by Stop or by
// cancellation of ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.log.Info("scheduler started",
		zap.String("job", s.name),
		zap.Duration("interval", s.interval))
}

// Stop signals the scheduler to stop and waits for the current run to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info("scheduler stopped", zap.String("job", s.name))
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	return done
}

func (s *Scheduler) run(parent context.Context) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.job(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.job(ctx)
		}
	}
}
