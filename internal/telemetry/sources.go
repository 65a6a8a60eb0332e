package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/i474232898/climate-telemetry/internal/result"
)

// OutdoorSource collects one weather observation per run.
type OutdoorSource struct {
	settings OutdoorSettings
	provider WeatherProvider
	store    WeatherStore
	logger   *slog.Logger
}

func NewOutdoorSource(logger *slog.Logger, settings OutdoorSettings, provider WeatherProvider, store WeatherStore) *OutdoorSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutdoorSource{
		settings: settings,
		provider: provider,
		store:    store,
		logger:   logger,
	}
}

func (s *OutdoorSource) Name() string { return "weather" }

func (s *OutdoorSource) Collect(ctx context.Context) result.Result[int] {
	loc, err := s.settings.Location()
	if err != nil {
		return result.Err[int](err)
	}

	sample, err := s.provider.Current(ctx, loc).Get()
	if err != nil {
		return result.Err[int](fmt.Errorf("failed to fetch weather data: %w", err))
	}

	if err := s.store.InsertWeather(ctx, sample); err != nil {
		return result.Err[int](fmt.Errorf("failed to save weather data: %w", err))
	}

	s.logger.Info("Weather collected",
		"provider", s.provider.Name(),
		"location", fmt.Sprintf("%g,%g", loc.Latitude, loc.Longitude),
		"location_id", sample.LocationID,
		"temperature", sample.Temperature,
		"humidity", sample.Humidity,
		"timestamp", sample.Timestamp,
	)
	return result.Ok(1)
}

// IndoorSource collects every registered sensor device and writes them as a
// single batch.
type IndoorSource struct {
	settings IndoorSettings
	provider IndoorProvider
	store    IndoorStore
	logger   *slog.Logger
}

func NewIndoorSource(logger *slog.Logger, settings IndoorSettings, provider IndoorProvider, store IndoorStore) *IndoorSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndoorSource{
		settings: settings,
		provider: provider,
		store:    store,
		logger:   logger,
	}
}

func (s *IndoorSource) Name() string { return "indoor" }

func (s *IndoorSource) Collect(ctx context.Context) result.Result[int] {
	if err := s.settings.Validate(); err != nil {
		return result.Err[int](err)
	}

	samples, err := s.provider.Readings(ctx).Get()
	if err != nil {
		return result.Err[int](fmt.Errorf("failed to fetch indoor sensor data: %w", err))
	}

	if len(samples) == 0 {
		s.logger.Info("No indoor sensors found")
		return result.Ok(0)
	}

	if err := s.store.InsertIndoorBatch(ctx, samples); err != nil {
		return result.Err[int](fmt.Errorf("failed to save indoor sensor data: %w", err))
	}

	s.logger.Info("Indoor sensors collected", "provider", s.provider.Name(), "devices", len(samples), "timestamp", samples[0].Timestamp)
	return result.Ok(len(samples))
}

var (
	_ Source = (*OutdoorSource)(nil)
	_ Source = (*IndoorSource)(nil)
)
