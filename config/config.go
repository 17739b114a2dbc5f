package config

import (
	"encoding/json"
	"os"
)

// Config holds runtime configuration for matching, polling and the browser
// backend. Fields may be loaded from a JSON file and overridden by
// command-line flags.
type Config struct {
	Debug bool `json:"debug"`

	// Matching parameters
	Matching  float64 `json:"matching"`
	Grayscale bool    `json:"grayscale"`
	Stride    int     `json:"stride"`
	Refine    bool    `json:"refine"`

	// Scale tolerance for DPI mismatches. Min == Max == 1 disables the
	// scale ladder.
	MinScale    float64 `json:"min_scale"`
	MaxScale    float64 `json:"max_scale"`
	ScaleStep   float64 `json:"scale_step"`
	StopOnScore float64 `json:"stop_on_score"`

	// Polling budgets in milliseconds
	WaitingTimeMs     int `json:"waiting_time_ms"`
	DownloadTimeoutMs int `json:"download_timeout_ms"`

	// Browser backend
	Headless     bool   `json:"headless"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
	UserAgent    string `json:"user_agent"`
	DownloadDir  string `json:"download_dir"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:             false,
		Matching:          0.9,
		Grayscale:         false,
		Stride:            1,
		Refine:            true,
		MinScale:          1.0,
		MaxScale:          1.0,
		ScaleStep:         0.05,
		StopOnScore:       0.95,
		WaitingTimeMs:     10000,
		DownloadTimeoutMs: 120000,
		Headless:          true,
		WindowWidth:       1600,
		WindowHeight:      900,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.Matching <= 0 || c.Matching > 1 {
		c.Matching = 0.9
	}
	if c.Stride <= 0 {
		c.Stride = 1
	}
	if c.MinScale <= 0 {
		c.MinScale = 1.0
	}
	if c.MaxScale <= 0 || c.MaxScale < c.MinScale {
		c.MaxScale = c.MinScale
	}
	if c.ScaleStep <= 0 {
		c.ScaleStep = 0.05
	}
	if c.StopOnScore < 0 || c.StopOnScore > 1 {
		c.StopOnScore = 0.95
	}
	if c.WaitingTimeMs <= 0 {
		c.WaitingTimeMs = 10000
	}
	if c.DownloadTimeoutMs <= 0 {
		c.DownloadTimeoutMs = 120000
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1600
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 900
	}
	return nil
}

// ScaleSearchEnabled reports whether a scale ladder is configured.
func (c *Config) ScaleSearchEnabled() bool {
	return c.MaxScale > c.MinScale
}

// Load attempts to read configuration from the given JSON file path. If the
// file does not exist it returns DefaultConfig(). On JSON error it returns
// defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return cfg, err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
