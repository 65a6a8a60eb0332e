package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/climate-telemetry/internal/result"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

// pruneAt is the daily UTC time of the retention job.
const pruneAt = "03:00"

// Runner performs one collection run.
type Runner interface {
	Collect(ctx context.Context) result.Result[result.Unit]
}

type Options struct {
	Interval      time.Duration
	Cron          string // overrides Interval when set
	RunTimeout    time.Duration
	RetentionDays int // 0 disables pruning
}

// Scheduler periodically runs collections and, optionally, prunes old rows.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	retention telemetry.RetentionStore
	opts      Options
	logger    *slog.Logger
}

// New creates a new Scheduler. retention may be nil when pruning is disabled.
func New(logger *slog.Logger, runner Runner, retention telemetry.RetentionStore, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	// a run still in progress makes the next tick skip
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		retention: retention,
		opts:      opts,
		logger:    logger,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	var err error
	if s.opts.Cron != "" {
		_, err = s.scheduler.Cron(s.opts.Cron).Do(s.RunCollection)
	} else {
		interval := s.opts.Interval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		_, err = s.scheduler.Every(interval).Do(s.RunCollection)
	}
	if err != nil {
		return err
	}

	if s.opts.RetentionDays > 0 && s.retention != nil {
		if _, err := s.scheduler.Every(1).Day().At(pruneAt).Do(s.RunPrune); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("Scheduler started",
		"interval", s.opts.Interval,
		"cron", s.opts.Cron,
		"retention_days", s.opts.RetentionDays,
	)
	return nil
}

// RunCollection executes one collection within the run timeout.
func (s *Scheduler) RunCollection() {
	ctx, cancel := s.runContext()
	defer cancel()

	s.logger.Info("Running scheduled collection")
	if err := s.runner.Collect(ctx).Err(); err != nil {
		s.logger.Error("Scheduled collection failed", "err", err)
	}
}

// RunPrune deletes rows older than the retention period.
func (s *Scheduler) RunPrune() {
	ctx, cancel := s.runContext()
	defer cancel()

	res, err := telemetry.Prune(ctx, s.retention, s.opts.RetentionDays)
	if err != nil {
		s.logger.Error("Retention prune failed", "err", err)
		return
	}
	s.logger.Info("Retention prune finished", "weather_deleted", res.Weather, "indoor_deleted", res.Indoor)
}

func (s *Scheduler) runContext() (context.Context, context.CancelFunc) {
	if s.opts.RunTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.opts.RunTimeout)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
