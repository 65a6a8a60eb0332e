package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

var indoorColumns = []string{
	"timestamp", "device_id", "device_name",
	"temperature", "humidity", "battery", "raw_data",
}

var insertIndoorSQL = fmt.Sprintf("INSERT INTO indoor_sensors (%s) VALUES (%s)",
	columns("", indoorColumns), placeholders(len(indoorColumns)))

func indoorArgs(r telemetry.IndoorSample) []any {
	return []any{
		r.Timestamp, r.DeviceID, r.DeviceName,
		r.Temperature, r.Humidity, nullFloat64(r.Battery), r.RawData,
	}
}

func (s *SQLiteStore) InsertIndoor(ctx context.Context, r telemetry.IndoorSample) error {
	if _, err := s.db.ExecContext(ctx, insertIndoorSQL, indoorArgs(r)...); err != nil {
		return fmt.Errorf("insert indoor sample: %w", err)
	}
	return nil
}

// InsertIndoorBatch writes all samples of a run atomically.
func (s *SQLiteStore) InsertIndoorBatch(ctx context.Context, samples []telemetry.IndoorSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin indoor batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertIndoorSQL)
	if err != nil {
		return fmt.Errorf("prepare indoor batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range samples {
		if _, err := stmt.ExecContext(ctx, indoorArgs(r)...); err != nil {
			return fmt.Errorf("insert indoor batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit indoor batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IndoorRange(ctx context.Context, fromMs, toMs int64) ([]telemetry.IndoorSample, error) {
	query := fmt.Sprintf(`SELECT %s FROM indoor_sensors
WHERE timestamp BETWEEN ? AND ?
ORDER BY timestamp DESC`, columns("", indoorColumns))

	rows, err := s.db.QueryContext(ctx, query, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("query indoor range: %w", err)
	}
	return scanIndoor(rows)
}

// LatestIndoor returns the newest sample of every device, ordered by name.
func (s *SQLiteStore) LatestIndoor(ctx context.Context) ([]telemetry.IndoorSample, error) {
	query := fmt.Sprintf(`SELECT %s FROM indoor_sensors i
JOIN (
	SELECT device_id, MAX(timestamp) AS ts FROM indoor_sensors GROUP BY device_id
) latest ON i.device_id = latest.device_id AND i.timestamp = latest.ts
ORDER BY i.device_name, i.device_id`, columns("i", indoorColumns))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest indoor: %w", err)
	}
	return scanIndoor(rows)
}

func (s *SQLiteStore) DeleteIndoorOlderThan(ctx context.Context, days int) (int64, error) {
	return s.deleteOlderThan(ctx, "indoor_sensors", days)
}

func scanIndoor(rows *sql.Rows) ([]telemetry.IndoorSample, error) {
	defer rows.Close()

	var out []telemetry.IndoorSample
	for rows.Next() {
		var (
			r       telemetry.IndoorSample
			battery sql.NullFloat64
		)
		if err := rows.Scan(
			&r.Timestamp, &r.DeviceID, &r.DeviceName,
			&r.Temperature, &r.Humidity, &battery, &r.RawData,
		); err != nil {
			return nil, fmt.Errorf("scan indoor row: %w", err)
		}
		if battery.Valid {
			v := battery.Float64
			r.Battery = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indoor rows: %w", err)
	}
	return out, nil
}
