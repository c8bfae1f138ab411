package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeRemote()
	if err := c.normalizeBrowser(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		c.Paths.WatchDir = defaultWatchDir
	}
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.UploadedSubdir = filepath.Clean(strings.TrimSpace(c.Paths.UploadedSubdir))
	if c.Paths.UploadedSubdir == "." {
		c.Paths.UploadedSubdir = defaultUploadedSubdir
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeIngest() {
	seen := make(map[string]struct{}, len(c.Ingest.Extensions))
	exts := make([]string, 0, len(c.Ingest.Extensions))
	for _, ext := range c.Ingest.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.Ingest.Extensions = exts
}

func (c *Config) normalizeRemote() {
	if c.Remote.Username == "" {
		if value, ok := os.LookupEnv("HOPPER_USERNAME"); ok {
			c.Remote.Username = value
		}
	}
	if c.Remote.Password == "" {
		if value, ok := os.LookupEnv("HOPPER_PASSWORD"); ok {
			c.Remote.Password = value
		}
	}
	c.Remote.Username = strings.TrimSpace(c.Remote.Username)
	c.Remote.LoginURL = strings.TrimSpace(c.Remote.LoginURL)
	c.Remote.UploadURL = strings.TrimSpace(c.Remote.UploadURL)
	c.Remote.ResponseURLFilter = strings.TrimSpace(c.Remote.ResponseURLFilter)
}

func (c *Config) normalizeBrowser() error {
	c.Browser.ExecPath = strings.TrimSpace(c.Browser.ExecPath)
	if strings.TrimSpace(c.Browser.UserDataDir) != "" {
		dir, err := expandPath(c.Browser.UserDataDir)
		if err != nil {
			return fmt.Errorf("browser.user_data_dir: %w", err)
		}
		c.Browser.UserDataDir = dir
	}
	sel := &c.Browser.Selectors
	sel.Username = strings.TrimSpace(sel.Username)
	sel.Password = strings.TrimSpace(sel.Password)
	sel.LoginSubmit = strings.TrimSpace(sel.LoginSubmit)
	sel.LoggedIn = strings.TrimSpace(sel.LoggedIn)
	sel.FileInput = strings.TrimSpace(sel.FileInput)
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("HOPPER_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	email := &c.Notifications.Email
	if email.Password == "" {
		if value, ok := os.LookupEnv("HOPPER_SMTP_PASSWORD"); ok {
			email.Password = value
		}
	}
	email.SMTPHost = strings.TrimSpace(email.SMTPHost)
	email.From = strings.TrimSpace(email.From)
	if email.SMTPPort == 0 {
		email.SMTPPort = defaultSMTPPort
	}
	recipients := email.To[:0]
	for _, to := range email.To {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	email.To = recipients
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
