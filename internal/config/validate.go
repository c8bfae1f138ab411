package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateStability(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if filepath.IsAbs(c.Paths.UploadedSubdir) {
		return errors.New("paths.uploaded_subdir must be relative to paths.watch_dir")
	}
	rel, err := filepath.Rel(c.Paths.WatchDir, c.UploadedDir())
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("paths.uploaded_subdir %q must name a folder inside paths.watch_dir", c.Paths.UploadedSubdir)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if len(c.Ingest.Extensions) == 0 {
		return errors.New("ingest.extensions must list at least one suffix")
	}
	if c.Ingest.DebounceMS < 0 {
		return errors.New("ingest.debounce_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateStability() error {
	if c.Stability.PollIntervalMS <= 0 {
		return errors.New("stability.poll_interval_ms must be positive")
	}
	if c.Stability.RequiredStableReadings < 1 {
		return errors.New("stability.required_stable_readings must be at least 1")
	}
	if c.Stability.TimeoutMS <= 0 {
		return errors.New("stability.timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.InitiationTimeoutSeconds <= 0 {
		return errors.New("remote.initiation_timeout_seconds must be positive")
	}
	if c.Remote.CompletionTimeoutSeconds <= 0 {
		return errors.New("remote.completion_timeout_seconds must be positive")
	}
	if c.Browser.NavigationTimeoutSeconds <= 0 {
		return errors.New("browser.navigation_timeout_seconds must be positive")
	}
	for name, value := range map[string]string{"remote.login_url": c.Remote.LoginURL, "remote.upload_url": c.Remote.UploadURL} {
		if value == "" {
			continue
		}
		if err := validateHTTPURL(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if topic := c.Notifications.NtfyTopic; topic != "" {
		if err := validateHTTPURL(topic); err != nil {
			return fmt.Errorf("notifications.ntfy_topic: %w", err)
		}
	}
	email := c.Notifications.Email
	if !email.Enabled {
		return nil
	}
	if email.SMTPHost == "" {
		return errors.New("notifications.email.smtp_host must be set when email is enabled")
	}
	if email.SMTPPort <= 0 || email.SMTPPort > 65535 {
		return errors.New("notifications.email.smtp_port must be between 1 and 65535")
	}
	if email.From == "" {
		return errors.New("notifications.email.from must be set when email is enabled")
	}
	if len(email.To) == 0 {
		return errors.New("notifications.email.to must list at least one recipient")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("expected http(s) URL, got %q", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
