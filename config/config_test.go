package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test_config.json")

	configData, err := json.Marshal(map[string]interface{}{
		"backend": map[string]interface{}{
			"min_latency_ms":      10,
			"max_latency_ms":      50,
			"success_probability": 0.9,
		},
		"rate": map[string]interface{}{
			"per_sender_per_minute": 5,
			"per_sender_per_hour":   100,
		},
		"api": map[string]interface{}{
			"port": 9090,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}

	if err := os.WriteFile(configFile, configData, 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Backend.MinLatencyMs != 10 {
		t.Errorf("Expected min_latency_ms 10, got %d", cfg.Backend.MinLatencyMs)
	}
	if cfg.Rate.PerSenderPerHour != 100 {
		t.Errorf("Expected per_sender_per_hour 100, got %d", cfg.Rate.PerSenderPerHour)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.API.Port)
	}
	// Defaults fill in anything the file omitted.
	if cfg.Planner.DefaultWorkingHours != 24 {
		t.Errorf("Expected default working hours 24, got %d", cfg.Planner.DefaultWorkingHours)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.Log.Level)
	}
}

func TestLoadConfigAppliesAllDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "empty_config.json")
	if err := os.WriteFile(configFile, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend.SuccessProbability != 0.97 {
		t.Errorf("Expected default success_probability 0.97, got %v", cfg.Backend.SuccessProbability)
	}
	if cfg.API.BoltDBPath != "campaignsched.db" {
		t.Errorf("Expected default boltdb path, got %q", cfg.API.BoltDBPath)
	}
}

func TestLoadConfigNonExistentFile(t *testing.T) {
	_, err := LoadConfig("non_existent_file.json")
	if err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid_config.json")

	if err := os.WriteFile(configFile, []byte("invalid json"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config file: %v", err)
	}

	if _, err := LoadConfig(configFile); err == nil {
		t.Error("Expected error when loading invalid JSON config file")
	}
}

func TestLoadConfigRejectsInvalidLatencyRange(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "bad_latency.json")
	data, _ := json.Marshal(map[string]interface{}{
		"backend": map[string]interface{}{
			"min_latency_ms": 500,
			"max_latency_ms": 10,
		},
	})
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfig(configFile); err == nil {
		t.Error("Expected error for max_latency_ms < min_latency_ms")
	}
}
