package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

var weatherColumns = []string{
	"timestamp", "location_id", "latitude", "longitude",
	"temperature", "feels_like", "temp_min", "temp_max",
	"humidity", "pressure", "wind_speed", "wind_deg",
	"weather_main", "weather_description", "visibility", "cloudiness",
	"sunrise", "sunset", "raw_data",
}

var insertWeatherSQL = fmt.Sprintf("INSERT INTO weather (%s) VALUES (%s)",
	columns("", weatherColumns), placeholders(len(weatherColumns)))

func weatherArgs(w telemetry.WeatherSample) []any {
	return []any{
		w.Timestamp, w.LocationID, w.Latitude, w.Longitude,
		w.Temperature, w.FeelsLike, w.TempMin, w.TempMax,
		w.Humidity, w.Pressure, w.WindSpeed, w.WindDeg,
		w.WeatherMain, w.WeatherDescription, w.Visibility, w.Cloudiness,
		nullInt64(w.Sunrise), nullInt64(w.Sunset), w.RawData,
	}
}

// InsertWeather stores a single weather sample.
func (s *SQLiteStore) InsertWeather(ctx context.Context, w telemetry.WeatherSample) error {
	if _, err := s.db.ExecContext(ctx, insertWeatherSQL, weatherArgs(w)...); err != nil {
		return fmt.Errorf("insert weather: %w", err)
	}
	return nil
}

// InsertWeatherBatch stores samples in one transaction.
func (s *SQLiteStore) InsertWeatherBatch(ctx context.Context, samples []telemetry.WeatherSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin weather batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertWeatherSQL)
	if err != nil {
		return fmt.Errorf("prepare weather batch: %w", err)
	}
	defer stmt.Close()

	for _, w := range samples {
		if _, err := stmt.ExecContext(ctx, weatherArgs(w)...); err != nil {
			return fmt.Errorf("insert weather batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weather batch: %w", err)
	}
	return nil
}

// WeatherRange returns samples with fromMs <= timestamp <= toMs, newest first.
func (s *SQLiteStore) WeatherRange(ctx context.Context, fromMs, toMs int64) ([]telemetry.WeatherSample, error) {
	query := fmt.Sprintf(`SELECT %s FROM weather
WHERE timestamp BETWEEN ? AND ?
ORDER BY timestamp DESC`, columns("", weatherColumns))

	rows, err := s.db.QueryContext(ctx, query, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("query weather range: %w", err)
	}
	return scanWeather(rows)
}

// LatestWeather returns the newest sample of every location.
func (s *SQLiteStore) LatestWeather(ctx context.Context) ([]telemetry.WeatherSample, error) {
	query := fmt.Sprintf(`SELECT %s FROM weather w
JOIN (
	SELECT location_id, MAX(timestamp) AS ts FROM weather GROUP BY location_id
) latest ON w.location_id = latest.location_id AND w.timestamp = latest.ts
ORDER BY w.location_id`, columns("w", weatherColumns))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest weather: %w", err)
	}
	return scanWeather(rows)
}

// DeleteWeatherOlderThan removes samples older than days and returns the count.
func (s *SQLiteStore) DeleteWeatherOlderThan(ctx context.Context, days int) (int64, error) {
	return s.deleteOlderThan(ctx, "weather", days)
}

func scanWeather(rows *sql.Rows) ([]telemetry.WeatherSample, error) {
	defer rows.Close()

	var out []telemetry.WeatherSample
	for rows.Next() {
		var (
			w               telemetry.WeatherSample
			sunrise, sunset sql.NullInt64
		)
		if err := rows.Scan(
			&w.Timestamp, &w.LocationID, &w.Latitude, &w.Longitude,
			&w.Temperature, &w.FeelsLike, &w.TempMin, &w.TempMax,
			&w.Humidity, &w.Pressure, &w.WindSpeed, &w.WindDeg,
			&w.WeatherMain, &w.WeatherDescription, &w.Visibility, &w.Cloudiness,
			&sunrise, &sunset, &w.RawData,
		); err != nil {
			return nil, fmt.Errorf("scan weather row: %w", err)
		}
		if sunrise.Valid {
			v := sunrise.Int64
			w.Sunrise = &v
		}
		if sunset.Valid {
			v := sunset.Int64
			w.Sunset = &v
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weather rows: %w", err)
	}
	return out, nil
}

var _ telemetry.Store = (*SQLiteStore)(nil)
