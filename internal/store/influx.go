package store

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

// InfluxConfig locates the optional InfluxDB bucket that mirrors every write.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether the mirror is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Mirror wraps a primary store and copies every committed write to InfluxDB.
// Reads and deletes only touch the primary; mirror failures are logged and
// never fail the write.
type Mirror struct {
	telemetry.Store

	writer pointWriter
	logger *slog.Logger
	close  func()
}

// NewInfluxMirror connects to InfluxDB with a blocking write API.
func NewInfluxMirror(logger *slog.Logger, primary telemetry.Store, cfg InfluxConfig) *Mirror {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	m := newMirror(logger, primary, client.WriteAPIBlocking(cfg.Org, cfg.Bucket))
	m.close = client.Close
	return m
}

func newMirror(logger *slog.Logger, primary telemetry.Store, w pointWriter) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		Store:  primary,
		writer: w,
		logger: logger,
		close:  func() {},
	}
}

// Close releases the InfluxDB client. The primary store is closed by its owner.
func (m *Mirror) Close() {
	m.close()
}

func (m *Mirror) InsertWeather(ctx context.Context, s telemetry.WeatherSample) error {
	if err := m.Store.InsertWeather(ctx, s); err != nil {
		return err
	}
	m.mirror(ctx, weatherPoint(s))
	return nil
}

func (m *Mirror) InsertWeatherBatch(ctx context.Context, samples []telemetry.WeatherSample) error {
	if err := m.Store.InsertWeatherBatch(ctx, samples); err != nil {
		return err
	}
	points := make([]*write.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, weatherPoint(s))
	}
	m.mirror(ctx, points...)
	return nil
}

func (m *Mirror) InsertIndoor(ctx context.Context, s telemetry.IndoorSample) error {
	if err := m.Store.InsertIndoor(ctx, s); err != nil {
		return err
	}
	m.mirror(ctx, indoorPoint(s))
	return nil
}

func (m *Mirror) InsertIndoorBatch(ctx context.Context, samples []telemetry.IndoorSample) error {
	if err := m.Store.InsertIndoorBatch(ctx, samples); err != nil {
		return err
	}
	points := make([]*write.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, indoorPoint(s))
	}
	m.mirror(ctx, points...)
	return nil
}

func (m *Mirror) mirror(ctx context.Context, points ...*write.Point) {
	if len(points) == 0 {
		return
	}
	if err := m.writer.WritePoint(ctx, points...); err != nil {
		m.logger.Warn("InfluxDB mirror write failed", "points", len(points), "err", err)
	}
}

func weatherPoint(s telemetry.WeatherSample) *write.Point {
	tags := map[string]string{
		"locationId": s.LocationID,
		"condition":  s.WeatherMain,
	}
	fields := map[string]interface{}{
		"temperature": s.Temperature,
		"feels_like":  s.FeelsLike,
		"temp_min":    s.TempMin,
		"temp_max":    s.TempMax,
		"humidity":    s.Humidity,
		"pressure":    s.Pressure,
		"wind_speed":  s.WindSpeed,
		"wind_deg":    s.WindDeg,
		"visibility":  s.Visibility,
		"cloudiness":  s.Cloudiness,
	}
	return write.NewPoint("weather", tags, fields, time.UnixMilli(s.Timestamp).UTC())
}

func indoorPoint(s telemetry.IndoorSample) *write.Point {
	tags := map[string]string{
		"deviceId":   s.DeviceID,
		"deviceName": s.DeviceName,
	}
	fields := map[string]interface{}{
		"temperature": s.Temperature,
		"humidity":    s.Humidity,
	}
	if s.Battery != nil {
		fields["battery"] = *s.Battery
	}
	return write.NewPoint("indoor_sensors", tags, fields, time.UnixMilli(s.Timestamp).UTC())
}
