// Package config loads the kernel's recognized configuration, exactly
// the keys spec.md §6 lists — any other YAML key is ignored rather than
// rejected, matching the spec's "recognized only" framing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Reconnect holds the event stream client's backoff parameters.
type Reconnect struct {
	BaseDelayMs       int     `yaml:"base_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	Multiplier        float64 `yaml:"multiplier"`
	Jitter            float64 `yaml:"jitter"`
	StableThresholdMs int     `yaml:"stable_threshold_ms"`
}

// Sync holds the scheduler's batching and retry parameters.
type Sync struct {
	BatchWindowMs int   `yaml:"batch_window_ms"`
	RetryDelaysMs []int `yaml:"retry_delays_ms"`
	MaxRetries    int   `yaml:"max_retries"`
}

// Reachability holds the reachability prober's parameters.
type Reachability struct {
	IntervalMs int `yaml:"interval_ms"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// Config is the kernel's full recognized configuration.
type Config struct {
	Namespace    string       `yaml:"namespace"`
	BaseURL      string       `yaml:"baseURL"`
	TimeoutMs    int          `yaml:"timeout_ms"`
	Reconnect    Reconnect    `yaml:"reconnect"`
	Sync         Sync         `yaml:"sync"`
	Reachability Reachability `yaml:"reachability"`
}

// Defaults returns the spec-mandated default configuration. Load starts
// from these and overlays whatever the YAML file or flags set.
func Defaults() Config {
	return Config{
		TimeoutMs: 5000,
		Reconnect: Reconnect{
			BaseDelayMs:       1000,
			MaxDelayMs:        60000,
			Multiplier:        2,
			Jitter:            0.3,
			StableThresholdMs: 30000,
		},
		Sync: Sync{
			BatchWindowMs: 100,
			RetryDelaysMs: []int{1000, 2000, 5000, 10000, 30000},
			MaxRetries:    5,
		},
		Reachability: Reachability{
			IntervalMs: 10000,
			TimeoutMs:  5000,
		},
	}
}

// Load reads a YAML config file and merges it over Defaults(). An empty
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the one required field and that the sync retry-delay
// table is not empty. Reconnect backoff settings are not checked.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("config: namespace is required")
	}
	if len(c.Sync.RetryDelaysMs) == 0 {
		return fmt.Errorf("config: sync.retry_delays_ms must not be empty")
	}
	return nil
}

func (c Config) Timeout() time.Duration      { return time.Duration(c.TimeoutMs) * time.Millisecond }
func (r Reconnect) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMs) * time.Millisecond }
func (r Reconnect) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMs) * time.Millisecond }
func (r Reconnect) StableAfter() time.Duration {
	return time.Duration(r.StableThresholdMs) * time.Millisecond
}
func (s Sync) BatchWindow() time.Duration { return time.Duration(s.BatchWindowMs) * time.Millisecond }
func (r Reachability) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}
func (r Reachability) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the delay before the (1-indexed) nth retry attempt,
// capped at the table's last entry per spec.md §4.5.
func (s Sync) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	idx := attempt - 1
	if idx >= len(s.RetryDelaysMs) {
		idx = len(s.RetryDelaysMs) - 1
	}
	return time.Duration(s.RetryDelaysMs[idx]) * time.Millisecond
}
