package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all server settings. Values are resolved in order:
// built-in defaults, then config.json if present, then environment
// variables.
type Config struct {
	ServerAddress string `json:"server_address"`

	// DatabasePath is the sqlite file used when DatabaseURL is empty.
	DatabasePath string `json:"database_path"`
	// DatabaseURL selects postgres when set.
	DatabaseURL string `json:"database_url"`

	MaxBodyBytes int64 `json:"max_body_bytes"`

	RateLimitRequests int `json:"rate_limit_requests"`
	RateLimitWindowS  int `json:"rate_limit_window_seconds"`

	DeviceSweepIntervalH int `json:"device_sweep_interval_hours"`
	DeviceMaxAgeDays     int `json:"device_max_age_days"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		ServerAddress:        ":3000",
		DatabasePath:         "casilisto.db",
		MaxBodyBytes:         5 << 20,
		RateLimitRequests:    100,
		RateLimitWindowS:     60,
		DeviceSweepIntervalH: 24,
		DeviceMaxAgeDays:     30,
	}
}

// Load resolves the configuration from defaults, an optional
// config.json next to the binary, and environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.ServerAddress = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.ServerAddress = ":" + v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitRequests = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitWindowS = n
		}
	}
	if v := os.Getenv("DEVICE_SWEEP_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DeviceSweepIntervalH = n
		}
	}
	if v := os.Getenv("DEVICE_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DeviceMaxAgeDays = n
		}
	}

	return cfg, nil
}

// UsePostgres reports whether the postgres backend is selected.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// RateLimitWindow returns the window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowS) * time.Second
}

// DeviceSweepInterval returns the sweep cadence as a duration.
func (c *Config) DeviceSweepInterval() time.Duration {
	return time.Duration(c.DeviceSweepIntervalH) * time.Hour
}

// DeviceMaxAge returns the stale-device cutoff as a duration.
func (c *Config) DeviceMaxAge() time.Duration {
	return time.Duration(c.DeviceMaxAgeDays) * 24 * time.Hour
}
