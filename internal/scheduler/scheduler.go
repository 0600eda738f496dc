// Package scheduler runs the pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task is a scheduled job. ctx is cancelled when the scheduler stops.
type Task func(ctx context.Context)

// Scheduler wraps a cron runner holding a single replaceable entry. A tick
// that fires while the previous one is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	expr    string
	mu      sync.Mutex
	entryID cron.EntryID
}

// New creates a Scheduler in loc. A nil loc means UTC.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule installs task under a standard five-field cron expression or a
// descriptor such as "@every 6h". A previous entry is replaced.
func (s *Scheduler) Schedule(expr string, task Task) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	id, err := s.cron.AddFunc(expr, func() { task(s.ctx) })
	if err != nil {
		return fmt.Errorf("adding cron entry: %w", err)
	}
	s.entryID = id
	s.expr = expr
	log.Info().Str("schedule", expr).Msg("Pipeline scheduled")
	return nil
}

// Expr returns the active schedule expression.
func (s *Scheduler) Expr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// Next returns the next activation time, or zero if nothing is scheduled or
// the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, cancels running tasks and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
