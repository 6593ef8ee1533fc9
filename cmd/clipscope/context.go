package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipscope/clipscope/internal/app"
	"github.com/clipscope/clipscope/internal/config"
	"github.com/clipscope/clipscope/internal/logging"
)

type commandContext struct {
	configPath string
	jsonOutput bool
	verbose    bool
}

func (c *commandContext) loadConfig() (config.Config, error) {
	if c.configPath != "" {
		if err := os.Setenv("CONFIG_FILE", c.configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Format = "text"
	cfg.Logging.Level = slog.LevelWarn
	if c.verbose {
		cfg.Logging.Level = slog.LevelDebug
	}
	return cfg, nil
}

// withApp builds the application for one command and closes it afterwards.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewWriter(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// output prints v as JSON with --json, otherwise runs render.
func (c *commandContext) output(cmd *cobra.Command, v any, render func() string) error {
	if c.jsonOutput {
		return writeJSON(cmd, v)
	}
	fmt.Fprintln(cmd.OutOrStdout(), render())
	return nil
}
