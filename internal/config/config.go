package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WatchDir       string `toml:"watch_dir"`
	UploadedSubdir string `toml:"uploaded_subdir"`
	LogDir         string `toml:"log_dir"`
	StateDir       string `toml:"state_dir"`
	APIBind        string `toml:"api_bind"`
}

// Ingest controls which folder entries become pipeline candidates.
type Ingest struct {
	Extensions  []string `toml:"extensions"`
	DebounceMS  int      `toml:"debounce_ms"`
	ScanOnStart bool     `toml:"scan_on_start"`
}

// Stability configures the write-completion detector.
type Stability struct {
	PollIntervalMS         int `toml:"poll_interval_ms"`
	RequiredStableReadings int `toml:"required_stable_readings"`
	TimeoutMS              int `toml:"timeout_ms"`
}

// Remote contains the upload service account and protocol timeouts.
type Remote struct {
	Username                 string `toml:"username"`
	Password                 string `toml:"password"`
	LoginURL                 string `toml:"login_url"`
	UploadURL                string `toml:"upload_url"`
	ResponseURLFilter        string `toml:"response_url_filter"`
	InitiationTimeoutSeconds int    `toml:"initiation_timeout_seconds"`
	CompletionTimeoutSeconds int    `toml:"completion_timeout_seconds"`
}

// Selectors names the page elements the browser transport drives.
type Selectors struct {
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	LoginSubmit string `toml:"login_submit"`
	LoggedIn    string `toml:"logged_in"`
	FileInput   string `toml:"file_input"`
}

// Browser configures the headless browser used as the upload transport.
type Browser struct {
	ExecPath                 string    `toml:"exec_path"`
	Headless                 bool      `toml:"headless"`
	UserDataDir              string    `toml:"user_data_dir"`
	NavigationTimeoutSeconds int       `toml:"navigation_timeout_seconds"`
	Selectors                Selectors `toml:"selectors"`
}

// Email contains SMTP delivery settings for outcome reports.
type Email struct {
	Enabled  bool     `toml:"enabled"`
	SMTPHost string   `toml:"smtp_host"`
	SMTPPort int      `toml:"smtp_port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
}

// Notifications contains configuration for ntfy and email reports.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Success        bool   `toml:"success"`
	Failure        bool   `toml:"failure"`
	Email          Email  `toml:"email"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for hopper.
//
// Configuration sections by subsystem:
//   - Paths: watch folder, destination subfolder, log/state directories, API bind
//   - Ingest: accepted file suffixes and watch-layer debounce
//   - Stability: size polling policy before a file is handed to the queue
//   - Remote: account credentials, page URLs and protocol timeouts
//   - Browser: headless browser settings and page selectors
//   - Notifications: ntfy and SMTP outcome reports
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Ingest        Ingest        `toml:"ingest"`
	Stability     Stability     `toml:"stability"`
	Remote        Remote        `toml:"remote"`
	Browser       Browser       `toml:"browser"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("hopper.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WatchDir, c.UploadedDir(), c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// UploadedDir is the destination for successfully uploaded files.
func (c *Config) UploadedDir() string {
	return filepath.Join(c.Paths.WatchDir, c.Paths.UploadedSubdir)
}

// HistoryPath is the SQLite outcome journal location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath is the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "hopper.lock")
}

// PollInterval is the stability poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Stability.PollIntervalMS) * time.Millisecond
}

// StabilityTimeout bounds a single stabilization attempt.
func (c *Config) StabilityTimeout() time.Duration {
	return time.Duration(c.Stability.TimeoutMS) * time.Millisecond
}

// Debounce is the watch-layer quiet period before a path is reported.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Ingest.DebounceMS) * time.Millisecond
}

// InitiationTimeout bounds the wait for the remote initiation acknowledgment.
func (c *Config) InitiationTimeout() time.Duration {
	return time.Duration(c.Remote.InitiationTimeoutSeconds) * time.Second
}

// CompletionTimeout bounds the wait for the remote completion acknowledgment.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.Remote.CompletionTimeoutSeconds) * time.Second
}

// NavigationTimeout bounds individual browser navigation steps.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Browser.NavigationTimeoutSeconds) * time.Second
}

// HasCredentials reports whether both account fields are set.
func (c *Config) HasCredentials() bool {
	return strings.TrimSpace(c.Remote.Username) != "" && c.Remote.Password != ""
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML with secrets masked.
func (c *Config) Encode() (string, error) {
	masked := *c
	if masked.Remote.Password != "" {
		masked.Remote.Password = "********"
	}
	if masked.Notifications.Email.Password != "" {
		masked.Notifications.Email.Password = "********"
	}
	data, err := toml.Marshal(masked)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
