package config

const (
	defaultConfigPath            = "~/.config/b2pc/config.toml"
	projectConfigName            = "b2pc.toml"
	defaultStateDir              = "~/.local/share/b2pc"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultToolTimeoutSeconds    = 300
	defaultCleanupTimeoutSeconds = 120
	defaultCleanupMode           = CleanupAsk
	defaultCompressionLevel      = "medium"
	defaultNotifyRequestTimeout  = 10
)

// Cleanup policies for processed source files.
const (
	CleanupAsk    = "ask"
	CleanupAlways = "always"
	CleanupNever  = "never"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Pipeline: Pipeline{
			ToolTimeoutSeconds:    defaultToolTimeoutSeconds,
			CleanupTimeoutSeconds: defaultCleanupTimeoutSeconds,
			Cleanup:               defaultCleanupMode,
			CompressionLevel:      defaultCompressionLevel,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			RunLogs:       true,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyRequestTimeout,
		},
	}
}
