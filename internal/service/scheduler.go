package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nepse_watch/internal/domain"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the goal check on a cron schedule in a fixed time zone.
// Missed runs are not caught up.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
	ctx      context.Context // handed to each job, set by Start
	logger   *slog.Logger
}

// NewScheduler parses spec (standard five-field cron) and binds job to it.
func NewScheduler(spec string, loc *time.Location, job func(ctx context.Context)) (*Scheduler, error) {
	if loc == nil {
		return nil, errors.New("scheduler: nil location")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}

	logger := slog.Default().With("module", "scheduler")
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{cron: c, schedule: schedule, loc: loc, ctx: context.Background(), logger: logger}
	c.Schedule(schedule, cron.FuncJob(func() {
		job(s.ctx)
	}))
	return s, nil
}

// NewCycleScheduler runs svc.RunCycle on spec. Cycle errors are already
// logged by the service; an overlapping manual run is only noted here.
func NewCycleScheduler(spec string, loc *time.Location, svc *GoalService) (*Scheduler, error) {
	return NewScheduler(spec, loc, func(ctx context.Context) {
		if _, err := svc.RunCycle(ctx); errors.Is(err, domain.ErrCycleInProgress) {
			slog.Default().With("module", "scheduler").Warn("Skipping scheduled check, cycle already running")
		}
	})
}

// Start begins firing in the background. Jobs receive ctx, so cancelling it
// interrupts a running check.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("⏰ Scheduler started", slog.Time("next_run", s.Next(time.Now())))
}

// Next returns the first fire time strictly after t, in the scheduler's zone.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Stop halts the timer and waits for a running job, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
