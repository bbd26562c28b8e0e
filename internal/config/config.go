// Package config loads the settings of the flux command from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Print modes accepted by PrintMode.
const (
	PrintValue = "value"
	PrintEach  = "each"
)

// Config holds the driver settings.
type Config struct {
	PrintMode  string      `yaml:"print_mode"`
	EntryPoint string      `yaml:"entry_point"`
	Jobs       int         `yaml:"jobs"`
	Log        LogConfig   `yaml:"log"`
	Watch      WatchConfig `yaml:"watch"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// WatchConfig tunes --watch.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		PrintMode:  PrintValue,
		EntryPoint: "main",
		Jobs:       1,
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Watch: WatchConfig{
			DebounceMS: 200,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve picks the config file: the explicit path if given, then
// $FLUX_CONFIG, then $XDG_CONFIG_HOME/flux/config.yaml (or the platform
// user config directory). An explicit path that does not exist is an error;
// the fallbacks are optional.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	if env := os.Getenv("FLUX_CONFIG"); env != "" {
		return env, nil
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return "", nil
		}
		dir = userDir
	}
	return filepath.Join(dir, "flux", "config.yaml"), nil
}

func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("FLUX_PRINT_MODE"); mode != "" {
		c.PrintMode = strings.ToLower(mode)
	}
	if level := os.Getenv("FLUX_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	switch c.PrintMode {
	case PrintValue, PrintEach:
	default:
		return fmt.Errorf("invalid print mode %q (valid: %s, %s)", c.PrintMode, PrintValue, PrintEach)
	}
	if c.EntryPoint == "" {
		return errors.New("entry point must not be empty")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: console, json)", c.Log.Format)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch debounce must not be negative, got %d", c.Watch.DebounceMS)
	}
	return nil
}
