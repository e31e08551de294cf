// Package jobs runs periodic maintenance against the event store.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepFunc performs one sweep and reports how many events it changed.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper invokes a SweepFunc on a cron schedule. Overlapping runs are
// skipped rather than queued.
type Sweeper struct {
	cron    *cron.Cron
	sweep   SweepFunc
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper validates spec (standard five field syntax or a descriptor such as
// "@every 5m") and prepares a sweeper evaluated in loc.
func NewSweeper(spec string, loc *time.Location, sweep SweepFunc, logger *slog.Logger) (*Sweeper, error) {
	if sweep == nil {
		return nil, fmt.Errorf("jobs: sweep function is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("jobs: invalid schedule %q: %w", spec, err)
	}

	cronLogger := slogCronLogger{logger: logger}
	s := &Sweeper{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweep:   sweep,
		logger:  logger.With("job", "sweep"),
		timeout: time.Minute,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("jobs: schedule sweep: %w", err)
	}
	return s, nil
}

// Start begins the schedule. Runs use a context derived from ctx and stop
// early once it is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancelRuns()
		return ctx.Err()
	}
	s.cancelRuns()
	return nil
}

// RunOnce runs a sweep immediately, outside the schedule.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.sweep(ctx)
}

// Next returns when the next scheduled run happens, or the zero time before Start.
func (s *Sweeper) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Sweeper) run() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	started := time.Now()
	changed, err := s.sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep failed", "error", err, "changed", changed)
		return
	}
	s.logger.DebugContext(ctx, "sweep finished", "changed", changed, "duration", time.Since(started))
}

func (s *Sweeper) cancelRuns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
