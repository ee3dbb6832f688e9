// Package config holds the dashboard settings: sampling cadence, retention,
// the selectable lookback presets and the optional metrics listener.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads Go duration strings ("200ms", "24h")
// from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds the application configuration.
type Config struct {
	SampleInterval  Duration   `yaml:"sample_interval"`
	DisplayInterval Duration   `yaml:"display_interval"`
	Retention       Duration   `yaml:"retention"`
	Presets         []Duration `yaml:"presets"`
	InitialPreset   int        `yaml:"initial_preset"` // 1-based index into Presets
	Sysfs           string     `yaml:"sysfs"`
	MetricsAddr     string     `yaml:"metrics_addr"`
	Batch           bool       `yaml:"batch"`
	Detail          bool       `yaml:"detail"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SampleInterval:  Duration(200 * time.Millisecond),
		DisplayInterval: Duration(5 * time.Second),
		Retention:       Duration(24 * time.Hour),
		Presets: []Duration{
			Duration(10 * time.Second),
			Duration(60 * time.Second),
			Duration(10 * time.Minute),
			Duration(time.Hour),
			Duration(24 * time.Hour),
		},
		InitialPreset: 1,
		Sysfs:         "/sys",
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive")
	}
	if c.DisplayInterval <= 0 {
		return fmt.Errorf("display interval must be positive")
	}
	if c.Retention < c.SampleInterval {
		return fmt.Errorf("retention %v is shorter than the sample interval %v",
			time.Duration(c.Retention), time.Duration(c.SampleInterval))
	}
	if len(c.Presets) == 0 || len(c.Presets) > 9 {
		return fmt.Errorf("between 1 and 9 presets are required, got %d", len(c.Presets))
	}
	for i, p := range c.Presets {
		if p <= 0 {
			return fmt.Errorf("preset %d must be positive", i+1)
		}
	}
	if c.InitialPreset < 1 || c.InitialPreset > len(c.Presets) {
		return fmt.Errorf("initial preset must be between 1 and %d", len(c.Presets))
	}
	if c.Sysfs == "" {
		return fmt.Errorf("sysfs path is required")
	}
	return nil
}

// PresetDurations returns the presets as plain durations.
func (c *Config) PresetDurations() []time.Duration {
	out := make([]time.Duration, len(c.Presets))
	for i, p := range c.Presets {
		out[i] = time.Duration(p)
	}
	return out
}

// SizeHint is the number of samples a disk retains at the configured rate.
func (c *Config) SizeHint() int {
	return int(time.Duration(c.Retention) / time.Duration(c.SampleInterval))
}
