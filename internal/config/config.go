// Package config loads the printer configuration from a YAML file and
// fills in the device's known-good defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mxwprint/internal/session"
)

// Config is everything the core accepts as configuration. Device is the
// optional target identifier: a MAC or UUID connects directly, a name
// scans for that advertised name, empty scans for the printer service.
type Config struct {
	Device    string `yaml:"device"`
	Intensity uint8  `yaml:"intensity"`

	DiscoveryTimeout    Duration `yaml:"discovery_timeout"`
	NotificationTimeout Duration `yaml:"notification_timeout"`

	// Completion waits CompletionBaseTimeout plus one second for every
	// CompletionLinesPerSecond rows in the job.
	CompletionBaseTimeout    Duration `yaml:"completion_base_timeout"`
	CompletionLinesPerSecond float64  `yaml:"completion_lines_per_second"`

	PacingDelay Duration `yaml:"pacing_delay"`
	SettleDelay Duration `yaml:"settle_delay"`

	// Journal is the path of the sqlite print-history database. Empty
	// disables the journal.
	Journal string `yaml:"journal"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Intensity:                session.DefaultIntensity,
		DiscoveryTimeout:         Duration(session.DefaultDiscoveryTimeout),
		NotificationTimeout:      Duration(session.DefaultNotificationTimeout),
		CompletionBaseTimeout:    Duration(session.DefaultCompletionBaseTimeout),
		CompletionLinesPerSecond: session.DefaultCompletionLinesPerSecond,
		PacingDelay:              Duration(session.DefaultPacingDelay),
		SettleDelay:              Duration(session.DefaultSettleDelay),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("couldn't read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("couldn't parse config: %w", err)
	}
	return cfg, nil
}

// SessionOptions maps the configuration onto session tuning.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		Intensity:                c.Intensity,
		NotificationTimeout:      c.NotificationTimeout.Std(),
		CompletionBaseTimeout:    c.CompletionBaseTimeout.Std(),
		CompletionLinesPerSecond: c.CompletionLinesPerSecond,
		PacingDelay:              c.PacingDelay.Std(),
		SettleDelay:              c.SettleDelay.Std(),
	}
}
