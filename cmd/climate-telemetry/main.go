package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	httpapi "github.com/i474232898/climate-telemetry/internal/api/http"
	"github.com/i474232898/climate-telemetry/internal/config"
	"github.com/i474232898/climate-telemetry/internal/logger"
	"github.com/i474232898/climate-telemetry/internal/scheduler"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

func main() {
	app := &cli.App{
		Name:   "climate-telemetry",
		Usage:  "collect outdoor weather and indoor sensor readings and serve them as time series",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the scheduler and the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "collect",
				Usage:  "run a single collection and exit",
				Action: collectOnce,
			},
			{
				Name:  "prune",
				Usage: "delete rows older than the given number of days",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "days",
						Usage:   "retention period in days (defaults to RETENTION_DAYS)",
						EnvVars: []string{"RETENTION_DAYS"},
					},
				},
				Action: prune,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("climate-telemetry failed", "err", err)
		os.Exit(1)
	}
}

type env struct {
	cfg *config.AppConfig
	log *slog.Logger
	c   *components
}

func setup(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, logCloser := logger.New(cfg.Log)
	slog.SetDefault(log)

	c, err := build(ctx, cfg, log)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	return &env{cfg: cfg, log: log, c: c}, func() {
		c.Close()
		logCloser.Close()
	}, nil
}

func collectOnce(cctx *cli.Context) error {
	e, cleanup, err := setup(cctx.Context)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cctx.Context, e.cfg.RunTimeout)
	defer cancel()
	return runCollect(ctx, e.c)
}

func prune(cctx *cli.Context) error {
	e, cleanup, err := setup(cctx.Context)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := telemetry.Prune(cctx.Context, e.c.store, cctx.Int("days"))
	if err != nil {
		return err
	}
	e.log.Info("Pruned old rows", "weather_deleted", res.Weather, "indoor_deleted", res.Indoor)
	return nil
}

func serve(cctx *cli.Context) error {
	e, cleanup, err := setup(cctx.Context)
	if err != nil {
		return err
	}
	defer cleanup()

	// Scheduler that periodically collects and prunes.
	sched := scheduler.New(e.log, e.c.collector, e.c.store, scheduler.Options{
		Interval:      e.cfg.CollectInterval,
		Cron:          e.cfg.CollectCron,
		RunTimeout:    e.cfg.RunTimeout,
		RetentionDays: e.cfg.RetentionDays,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	deps := httpapi.Deps{
		Engine:     e.c.engine,
		Collector:  e.c.collector,
		Latest:     e.c.store,
		APIKey:     e.cfg.APIKey,
		RunTimeout: e.cfg.RunTimeout,
		Logger:     e.log,
	}
	if e.c.pinger != nil {
		deps.Pinger = e.c.pinger
	}
	app := httpapi.NewApp(deps)

	// Start server with graceful shutdown
	go func() {
		e.log.Info("HTTP server listening", "port", e.cfg.Port)
		if err := app.Listen(":" + e.cfg.Port); err != nil {
			e.log.Error("fiber server stopped", "err", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		e.log.Error("error during shutdown", "err", err)
	}
	return nil
}
