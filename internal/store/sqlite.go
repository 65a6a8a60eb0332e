package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DDL creates the telemetry tables. It is idempotent and runs on every Open.
const DDL = `
CREATE TABLE IF NOT EXISTS weather (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	location_id TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	temperature REAL NOT NULL,
	feels_like REAL NOT NULL,
	temp_min REAL NOT NULL,
	temp_max REAL NOT NULL,
	humidity REAL NOT NULL,
	pressure REAL NOT NULL,
	wind_speed REAL NOT NULL,
	wind_deg REAL NOT NULL,
	weather_main TEXT NOT NULL,
	weather_description TEXT NOT NULL,
	visibility REAL NOT NULL,
	cloudiness REAL NOT NULL,
	sunrise INTEGER,
	sunset INTEGER,
	raw_data TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s', 'now') AS INTEGER) * 1000)
);

CREATE INDEX IF NOT EXISTS idx_weather_timestamp ON weather(timestamp);
CREATE INDEX IF NOT EXISTS idx_weather_location_timestamp ON weather(location_id, timestamp);

CREATE TABLE IF NOT EXISTS indoor_sensors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	device_id TEXT NOT NULL,
	device_name TEXT NOT NULL,
	temperature REAL NOT NULL,
	humidity REAL NOT NULL,
	battery REAL,
	raw_data TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s', 'now') AS INTEGER) * 1000)
);

CREATE INDEX IF NOT EXISTS idx_indoor_timestamp ON indoor_sensors(timestamp);
CREATE INDEX IF NOT EXISTS idx_indoor_device_timestamp ON indoor_sensors(device_id, timestamp);
`

// ConnectSQLite opens a pure-Go SQLite database in WAL mode.
func ConnectSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
}

// SQLiteStore implements telemetry.Store on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite connects to path and creates the schema if needed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := ConnectSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, DDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection, used by the health endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) deleteOlderThan(ctx context.Context, table string, days int) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoffMs(s.now(), days))
	if err != nil {
		return 0, fmt.Errorf("delete old %s rows: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old %s rows: %w", table, err)
	}
	return n, nil
}

// columns renders a column list with an optional table alias.
func columns(alias string, names []string) string {
	if alias == "" {
		return strings.Join(names, ", ")
	}
	prefixed := make([]string, len(names))
	for i, n := range names {
		prefixed[i] = alias + "." + n
	}
	return strings.Join(prefixed, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
