package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/session"
	"hopper/internal/transport/browser"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// transports overrides the browser transport for one-shot uploads.
	transports session.TransportFactory
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// commandLogger logs to stderr so command output on stdout stays clean.
func (c *commandContext) commandLogger(cfg *config.Config, level string) (*slog.Logger, error) {
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

func (c *commandContext) transportFactory(cfg *config.Config, logger *slog.Logger) session.TransportFactory {
	if c.transports != nil {
		return c.transports
	}
	return browser.NewFactory(browser.OptionsFromConfig(cfg), logger)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
