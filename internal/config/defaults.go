package config

const (
	defaultConfigPath               = "~/.config/hopper/config.toml"
	defaultWatchDir                 = "~/hopper/inbox"
	defaultUploadedSubdir           = "uploaded"
	defaultLogDir                   = "~/.local/share/hopper/logs"
	defaultStateDir                 = "~/.local/share/hopper/state"
	defaultAPIBind                  = "127.0.0.1:7488"
	defaultDebounceMS               = 2000
	defaultPollIntervalMS           = 500
	defaultRequiredStableReadings   = 2
	defaultStabilityTimeoutMS       = 30000
	defaultInitiationTimeoutSeconds = 60
	defaultCompletionTimeoutSeconds = 20 * 60
	defaultNavigationTimeoutSeconds = 60
	defaultNtfyRequestTimeout       = 10
	defaultSMTPPort                 = 587
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

var defaultExtensions = []string{".mp3", ".m4a", ".wav", ".flac", ".ogg", ".aac", ".aiff"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:       defaultWatchDir,
			UploadedSubdir: defaultUploadedSubdir,
			LogDir:         defaultLogDir,
			StateDir:       defaultStateDir,
			APIBind:        defaultAPIBind,
		},
		Ingest: Ingest{
			Extensions:  append([]string(nil), defaultExtensions...),
			DebounceMS:  defaultDebounceMS,
			ScanOnStart: true,
		},
		Stability: Stability{
			PollIntervalMS:         defaultPollIntervalMS,
			RequiredStableReadings: defaultRequiredStableReadings,
			TimeoutMS:              defaultStabilityTimeoutMS,
		},
		Remote: Remote{
			InitiationTimeoutSeconds: defaultInitiationTimeoutSeconds,
			CompletionTimeoutSeconds: defaultCompletionTimeoutSeconds,
		},
		Browser: Browser{
			Headless:                 true,
			NavigationTimeoutSeconds: defaultNavigationTimeoutSeconds,
			Selectors: Selectors{
				Username:    `input[name="username"]`,
				Password:    `input[type="password"]`,
				LoginSubmit: `button[type="submit"]`,
				FileInput:   `input[type="file"]`,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Success:        true,
			Failure:        true,
			Email: Email{
				SMTPPort: defaultSMTPPort,
			},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
