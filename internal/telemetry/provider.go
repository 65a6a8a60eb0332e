package telemetry

import (
	"context"

	"github.com/i474232898/climate-telemetry/internal/result"
)

// WeatherProvider abstracts the outdoor weather service.
type WeatherProvider interface {
	Name() string
	Current(ctx context.Context, loc Location) result.Result[WeatherSample]
}

// IndoorProvider abstracts the home-sensor service. It returns one sample per
// reachable device; an empty slice means no devices are registered.
type IndoorProvider interface {
	Name() string
	Readings(ctx context.Context) result.Result[[]IndoorSample]
}

// WeatherStore is the persistence contract for outdoor samples.
// Range reads are ordered by timestamp descending; bounds are inclusive
// milliseconds.
type WeatherStore interface {
	InsertWeather(ctx context.Context, s WeatherSample) error
	InsertWeatherBatch(ctx context.Context, samples []WeatherSample) error
	WeatherRange(ctx context.Context, fromMs, toMs int64) ([]WeatherSample, error)
	LatestWeather(ctx context.Context) ([]WeatherSample, error)
	DeleteWeatherOlderThan(ctx context.Context, days int) (int64, error)
}

// IndoorStore is the persistence contract for device samples.
type IndoorStore interface {
	InsertIndoor(ctx context.Context, s IndoorSample) error
	InsertIndoorBatch(ctx context.Context, samples []IndoorSample) error
	IndoorRange(ctx context.Context, fromMs, toMs int64) ([]IndoorSample, error)
	LatestIndoor(ctx context.Context) ([]IndoorSample, error)
	DeleteIndoorOlderThan(ctx context.Context, days int) (int64, error)
}

// Store is the contract every persistence backend satisfies.
type Store interface {
	WeatherStore
	IndoorStore
}
