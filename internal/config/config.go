package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/climate-telemetry/internal/fetch"
	"github.com/i474232898/climate-telemetry/internal/logger"
	"github.com/i474232898/climate-telemetry/internal/store"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type AppConfig struct {
	// Source settings are checked per run, not at startup.
	Outdoor telemetry.OutdoorSettings `validate:"-"`
	Indoor  telemetry.IndoorSettings  `validate:"-"`

	SwitchBotRPS float64 `validate:"gte=0"`
	Fetch        fetch.Config

	// CollectCron wins over CollectInterval when set.
	CollectInterval time.Duration `validate:"gt=0"`
	CollectCron     string
	RunTimeout      time.Duration `validate:"gt=0"`
	RetentionDays   int           `validate:"gte=0"` // 0 disables pruning

	StoreDriver     string `validate:"oneof=sqlite memory"`
	DBPath          string `validate:"required_if=StoreDriver sqlite"`
	StoreMaxHistory int    `validate:"gte=0"` // memory driver only (0 = unlimited)
	Influx          store.InfluxConfig

	APIKey string
	Port   string `validate:"required,numeric"`

	Log logger.Options
}

// Load reads configuration from the environment (and an optional .env file)
// with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found or error loading it", "err", err)
	}

	cfg := &AppConfig{
		Outdoor: telemetry.OutdoorSettings{
			APIKey:       os.Getenv("OPENWEATHER_API_KEY"),
			Latitude:     os.Getenv("WEATHER_LATITUDE"),
			Longitude:    os.Getenv("WEATHER_LONGITUDE"),
			LocationID:   os.Getenv("WEATHER_LOCATION_ID"),
			LocationName: os.Getenv("WEATHER_LOCATION_NAME"),
		},
		Indoor: telemetry.IndoorSettings{
			Token:  os.Getenv("SWITCHBOT_TOKEN"),
			Secret: os.Getenv("SWITCHBOT_CLIENT_SECRET"),
		},
		CollectCron: os.Getenv("COLLECT_CRON"),
		StoreDriver: getenvDefault("STORE_DRIVER", DriverSQLite),
		DBPath:      getenvDefault("DB_PATH", "climate.db"),
		Influx: store.InfluxConfig{
			URL:    os.Getenv("INFLUX_URL"),
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    os.Getenv("INFLUX_ORG"),
			Bucket: os.Getenv("INFLUX_BUCKET"),
		},
		APIKey: os.Getenv("API_KEY"),
		Port:   getenvDefault("PORT", "8080"),
		Log: logger.Options{
			Level:  getenvDefault("LOG_LEVEL", "INFO"),
			Format: getenvDefault("LOG_FORMAT", "text"),
			Output: getenvDefault("LOG_OUTPUT", "stdout"),
		},
	}

	var err error
	if cfg.SwitchBotRPS, err = getenvFloat("SWITCHBOT_RPS", 1); err != nil {
		return nil, err
	}
	if cfg.Fetch.MaxRetries, err = getenvInt("FETCH_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.Fetch.InitialDelay, err = getenvDuration("FETCH_INITIAL_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.Fetch.Timeout, err = getenvDuration("FETCH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CollectInterval, err = getenvDuration("COLLECT_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = getenvDuration("RUN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = getenvInt("RETENTION_DAYS", 0); err != nil {
		return nil, err
	}
	// roughly 24h at 15-minute intervals
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 96); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the startup-level settings.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
