// Package config loads the scheduler service's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// BackendConfig configures the simulated send backend's latency and
// failure characteristics.
type BackendConfig struct {
	MinLatencyMs       int     `json:"min_latency_ms"`
	MaxLatencyMs       int     `json:"max_latency_ms"`
	SuccessProbability float64 `json:"success_probability"`
}

// RateConfig configures the per-sender rolling-window anti-spam
// envelope, independent of any one task's planned throughput.
type RateConfig struct {
	PerSenderPerMinute int `json:"per_sender_per_minute"`
	PerSenderPerHour   int `json:"per_sender_per_hour"`
}

// PlannerConfig holds planner defaults. DefaultWorkingHours is loaded and
// validated but nothing reads it: when a request omits working hours,
// the planner uses 24.
type PlannerConfig struct {
	DefaultWorkingHours int `json:"default_working_hours"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

type APIConfig struct {
	Port         int    `json:"port"`
	WebhookURL   string `json:"webhook_url,omitempty"`
	BoltDBPath   string `json:"boltdb_path"`
}

// AppConfig is the scheduler service's full configuration.
type AppConfig struct {
	Backend BackendConfig `json:"backend"`
	Rate    RateConfig    `json:"rate"`
	Planner PlannerConfig `json:"planner"`
	Log     LogConfig     `json:"log"`
	API     APIConfig     `json:"api"`
}

// LoadConfig reads JSON config from disk and returns a parsed
// AppConfig with defaults applied and validated. It never terminates
// the process; callers handle returned errors.
func LoadConfig(path string) (*AppConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close config file: %v\n", closeErr)
		}
	}()

	var cfg AppConfig
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config JSON: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies sensible defaults to missing config values.
func (c *AppConfig) setDefaults() {
	if c.Backend.MinLatencyMs == 0 {
		c.Backend.MinLatencyMs = 20
	}
	if c.Backend.MaxLatencyMs == 0 {
		c.Backend.MaxLatencyMs = 200
	}
	if c.Backend.SuccessProbability == 0 {
		c.Backend.SuccessProbability = 0.97
	}

	if c.Rate.PerSenderPerMinute == 0 {
		c.Rate.PerSenderPerMinute = 30
	}
	if c.Rate.PerSenderPerHour == 0 {
		c.Rate.PerSenderPerHour = 500
	}

	if c.Planner.DefaultWorkingHours == 0 {
		c.Planner.DefaultWorkingHours = 24
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.BoltDBPath == "" {
		c.API.BoltDBPath = "campaignsched.db"
	}
}

// validate checks required config fields and limits.
func (c *AppConfig) validate() error {
	if c.Backend.MinLatencyMs < 0 || c.Backend.MaxLatencyMs < c.Backend.MinLatencyMs {
		return fmt.Errorf("backend.max_latency_ms must be >= backend.min_latency_ms, both non-negative")
	}
	if c.Backend.SuccessProbability < 0 || c.Backend.SuccessProbability > 1 {
		return fmt.Errorf("backend.success_probability must be between 0 and 1")
	}
	if c.Rate.PerSenderPerMinute <= 0 {
		return fmt.Errorf("rate.per_sender_per_minute must be positive")
	}
	if c.Rate.PerSenderPerHour <= 0 {
		return fmt.Errorf("rate.per_sender_per_hour must be positive")
	}
	if c.Planner.DefaultWorkingHours <= 0 || c.Planner.DefaultWorkingHours > 24 {
		return fmt.Errorf("planner.default_working_hours must be between 1 and 24")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be a valid TCP port")
	}
	return nil
}
