package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lilo/pkg/config"
)

// quietLevel keeps the terminal clean unless a level was asked for.
const quietLevel = "warn"

// loadConfig reads the --config file, or the per-user file when present, and
// applies --log-level on top of it. Logs go to the command's stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, nil, err
	}

	switch {
	case level != "":
		cfg.LogLevel = level
	case !cfg.LogLevelSet():
		cfg.LogLevel = quietLevel
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return cfg, logger, nil
}
