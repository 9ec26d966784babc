// Package scheduler runs the periodic match sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"trivia-live-service/internal/app"
)

// SweepFunc claims whatever matches are due. It should return once the claims are made
// and leave the runs to the caller's controller.
type SweepFunc func(ctx context.Context) (app.SweepResult, error)

type Options struct {
	Interval time.Duration
	// Timeout bounds a single sweep call. Zero means no bound.
	Timeout time.Duration
	// RunImmediately fires the first sweep at Start instead of after one interval.
	RunImmediately bool
}

// Scheduler fires a sweep on a fixed interval. Sweep calls never overlap.
type Scheduler struct {
	cron   gocron.Scheduler
	sweep  SweepFunc
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(sweep SweepFunc, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if sweep == nil {
		return nil, fmt.Errorf("sweep function required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	cron, err := gocron.NewScheduler(gocron.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: cron, sweep: sweep, opts: opts, logger: logger, ctx: ctx, cancel: cancel}

	jobOpts := []gocron.JobOption{
		gocron.WithName("match-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if opts.RunImmediately {
		jobOpts = append(jobOpts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if _, err := cron.NewJob(gocron.DurationJob(opts.Interval), gocron.NewTask(s.run), jobOpts...); err != nil {
		cancel()
		_ = cron.Shutdown()
		return nil, fmt.Errorf("register sweep job: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("match sweep scheduled", "interval", s.opts.Interval.String())
	s.cron.Start()
}

// Shutdown cancels an in-flight sweep and waits for it to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}

func (s *Scheduler) run() {
	ctx := s.ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	started := time.Now()
	res, err := s.sweep(ctx)
	if err != nil {
		s.logger.Error("match sweep failed", "error", err, "claimed", res.Claimed, "completed", res.Completed)
		return
	}
	if res.Candidates == 0 {
		s.logger.Debug("match sweep idle")
		return
	}
	s.logger.Info("match sweep done",
		"candidates", res.Candidates,
		"claimed", res.Claimed,
		"completed", res.Completed,
		"took", time.Since(started).String(),
	)
}
