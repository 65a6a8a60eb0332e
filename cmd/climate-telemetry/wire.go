package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/i474232898/climate-telemetry/internal/config"
	"github.com/i474232898/climate-telemetry/internal/query"
	"github.com/i474232898/climate-telemetry/internal/store"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
	"github.com/i474232898/climate-telemetry/internal/telemetry/providers"
)

// components holds everything built from the configuration.
type components struct {
	store     telemetry.Store
	pinger    interface{ Ping(context.Context) error }
	collector *telemetry.Collector
	engine    *query.Engine
	closers   []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*components, error) {
	c := &components{}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		c.store = store.NewMemoryStore(cfg.StoreMaxHistory)
	default:
		db, err := store.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		c.store, c.pinger = db, db
		c.closers = append(c.closers, func() {
			if err := db.Close(); err != nil {
				log.Error("Failed to close database", "err", err)
			}
		})
		log.Info("Database opened", "path", cfg.DBPath)
	}

	if cfg.Influx.Enabled() {
		mirror := store.NewInfluxMirror(log, c.store, cfg.Influx)
		c.store = mirror
		c.closers = append(c.closers, mirror.Close)
		log.Info("InfluxDB mirror enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	}

	// Shared HTTP client for outbound provider calls; timeouts are per attempt.
	httpClient := &http.Client{}

	outdoor := telemetry.NewOutdoorSource(log, cfg.Outdoor,
		providers.NewOpenWeatherClient(httpClient, cfg.Outdoor.APIKey, cfg.Fetch), c.store)
	indoor := telemetry.NewIndoorSource(log, cfg.Indoor,
		providers.NewSwitchBotClient(log, httpClient, cfg.Indoor.Token, cfg.Indoor.Secret, cfg.SwitchBotRPS, cfg.Fetch), c.store)

	c.collector = telemetry.NewCollector(log, outdoor, indoor)
	c.engine = query.NewEngine(log, c.store)
	return c, nil
}

func runCollect(ctx context.Context, c *components) error {
	if err := c.collector.Collect(ctx).Err(); err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}
	return nil
}
