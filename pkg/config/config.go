// Package config loads and validates the application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Location LocationConfig `yaml:"location"`
	Sim      SimConfig      `yaml:"sim"`
	Map      MapConfig      `yaml:"map"`
	Tiles    TilesConfig    `yaml:"tiles"`
	Request  RequestConfig  `yaml:"request"`
	Places   PlacesConfig   `yaml:"places"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address           string   `yaml:"address"`
	TelemetryInterval Duration `yaml:"telemetry_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// LocationConfig holds the sampler settings. The displacement filter and the
// accuracy gate are tunables, not behavior baked into the sampler.
type LocationConfig struct {
	Provider        string   `yaml:"provider"` // "sim"
	HighAccuracy    bool     `yaml:"high_accuracy"`
	Timeout         Duration `yaml:"timeout"`
	MaxSampleAge    Duration `yaml:"max_sample_age"`
	SampleInterval  Duration `yaml:"sample_interval"`
	MinDisplacement Distance `yaml:"min_displacement"`
	AccuracyGate    Distance `yaml:"accuracy_gate"`
}

// SimConfig holds settings for the simulated location feed.
type SimConfig struct {
	StartLat  float64  `yaml:"start_lat"`
	StartLon  float64  `yaml:"start_lon"`
	SpeedKmh  float64  `yaml:"speed_kmh"`
	Tick      Duration `yaml:"tick"`
	AccuracyM float64  `yaml:"accuracy_m"`
	Seed      int64    `yaml:"seed"`
}

// MapConfig holds view and render-loop settings.
type MapConfig struct {
	DefaultLayer  string   `yaml:"default_layer"` // "street" or "satellite"
	CanvasWidth   int      `yaml:"canvas_width"`
	CanvasHeight  int      `yaml:"canvas_height"`
	FrameInterval Duration `yaml:"frame_interval"`
	TouchPrimary  bool     `yaml:"touch_primary"`
	InitialZoom   int      `yaml:"initial_zoom"`
}

// TilesConfig holds tile source settings. Mirror URLs carry {z}/{x}/{y}
// placeholders; any reachable mirror is acceptable.
type TilesConfig struct {
	StreetMirrors    []string `yaml:"street_mirrors"`
	SatelliteMirrors []string `yaml:"satellite_mirrors"`
	FailedRetryAfter Duration `yaml:"failed_retry_after"`
}

// RequestConfig holds HTTP fetch settings.
type RequestConfig struct {
	Retries        int           `yaml:"retries"`
	Timeout        Duration      `yaml:"timeout"`
	WorkersPerHost int           `yaml:"workers_per_host"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// PlacesConfig holds nearby-place generation settings.
type PlacesConfig struct {
	Radius     Distance `yaml:"radius"`
	MaxResults int      `yaml:"max_results"`
}

// VehicleConfig holds the vehicle-data channel settings.
type VehicleConfig struct {
	Enabled     bool     `yaml:"enabled"`
	URL         string   `yaml:"url"`
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Staleness   Duration `yaml:"staleness"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           "localhost:1880",
			TelemetryInterval: Duration(1 * time.Second),
		},
		Log: LogConfig{
			Path:  "./logs/roadscout.log",
			Level: "INFO",
		},
		Location: LocationConfig{
			Provider:        "sim",
			HighAccuracy:    true,
			Timeout:         Duration(10 * time.Second),
			MaxSampleAge:    Duration(5 * time.Second),
			SampleInterval:  Duration(2 * time.Second),
			MinDisplacement: Distance(2),
			AccuracyGate:    Distance(20),
		},
		Sim: SimConfig{
			StartLat:  19.0760,
			StartLon:  72.8777,
			SpeedKmh:  40,
			Tick:      Duration(1 * time.Second),
			AccuracyM: 8,
			Seed:      1,
		},
		Map: MapConfig{
			DefaultLayer:  "street",
			CanvasWidth:   1024,
			CanvasHeight:  768,
			FrameInterval: Duration(33 * time.Millisecond),
			InitialZoom:   15,
		},
		Tiles: TilesConfig{
			StreetMirrors: []string{
				"https://a.tile.openstreetmap.org/{z}/{x}/{y}.png",
				"https://b.tile.openstreetmap.org/{z}/{x}/{y}.png",
				"https://c.tile.openstreetmap.org/{z}/{x}/{y}.png",
			},
			SatelliteMirrors: []string{
				"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			},
			FailedRetryAfter: Duration(15 * time.Second),
		},
		Request: RequestConfig{
			Retries:        3,
			Timeout:        Duration(20 * time.Second),
			WorkersPerHost: 4,
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(15 * time.Second),
			},
		},
		Places: PlacesConfig{
			Radius:     Distance(3000),
			MaxResults: 20,
		},
		Vehicle: VehicleConfig{
			Enabled:     false,
			URL:         "ws://localhost:9777/vehicle",
			MaxAttempts: 5,
			BaseDelay:   Duration(1 * time.Second),
			MaxDelay:    Duration(30 * time.Second),
			Staleness:   Duration(5 * time.Second),
		},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults; an existing file is merged over the defaults and never
// written back, so user formatting and comments survive.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault writes a fresh default config, refusing to clobber an
// existing file.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}

func (c *Config) validate() error {
	if c.Map.InitialZoom < 3 || c.Map.InitialZoom > 18 {
		return fmt.Errorf("map.initial_zoom %d outside [3,18]", c.Map.InitialZoom)
	}
	if c.Map.DefaultLayer != "street" && c.Map.DefaultLayer != "satellite" {
		return fmt.Errorf("map.default_layer must be street or satellite, got %q", c.Map.DefaultLayer)
	}
	if len(c.Tiles.StreetMirrors) == 0 {
		return fmt.Errorf("tiles.street_mirrors must not be empty")
	}
	if c.Location.MinDisplacement < 0 || c.Location.AccuracyGate < 0 {
		return fmt.Errorf("location filter distances must be non-negative")
	}
	return nil
}
