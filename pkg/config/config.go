package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/lilo/internal/lilo"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel  string `yaml:"log_level" default:"info"`
	LogFormat string `yaml:"log_format" default:"text"` // text, json

	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"90s"`
	CommandTimeout time.Duration `yaml:"command_timeout" default:"60s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" default:"30s"`

	LocalName    string   `yaml:"local_name" default:"LILO"`
	OutputFormat string   `yaml:"output_format" default:"table"` // table, json
	Devices      []string `yaml:"devices"`

	logLevelSet bool
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lilo", "config.yaml"), nil
}

// Load reads the YAML file at path on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg.LogLevel = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.logLevelSet = cfg.LogLevel != ""
	// Keys present but empty in the file fall back to defaults too.
	defaults.SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads the file at DefaultPath when it exists, the defaults otherwise.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unsupported format %q (use text or json)", c.LogFormat))
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		errs = append(errs, fmt.Errorf("output_format: unsupported format %q (use table or json)", c.OutputFormat))
	}

	for name, d := range map[string]time.Duration{
		"scan_timeout":    c.ScanTimeout,
		"connect_timeout": c.ConnectTimeout,
		"command_timeout": c.CommandTimeout,
		"idle_timeout":    c.IdleTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %s", name, d))
		}
	}

	for i, addr := range c.Devices {
		if strings.TrimSpace(addr) == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: address is empty", i))
		}
	}

	return errors.Join(errs...)
}

// LogLevelSet reports whether the loaded file chose a log level.
func (c *Config) LogLevelSet() bool {
	return c.logLevelSet
}

// Level returns the configured log level, info when it cannot be parsed.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
		return logger
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// DriverOptions returns the timeouts every driver is created with.
func (c *Config) DriverOptions() lilo.Options {
	return lilo.Options{
		ConnectTimeout: c.ConnectTimeout,
		CommandTimeout: c.CommandTimeout,
		IdleTimeout:    c.IdleTimeout,
	}
}
