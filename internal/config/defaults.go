package config

const (
	defaultDatabasePath      = "~/.local/share/earworm/earworm.db"
	defaultSyncMode          = SyncModeSimulated
	defaultSyncTimeout       = 10
	defaultSyncSuccessRate   = 0.9
	defaultSyncLatencyMS     = 400
	defaultLogFormat         = "text"
	defaultLogLevel          = "info"
	defaultConfigPath        = "~/.config/earworm/config.toml"
	defaultProjectConfigFile = "earworm.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Database: defaultDatabasePath,
		},
		Sync: Sync{
			Mode:           defaultSyncMode,
			TimeoutSeconds: defaultSyncTimeout,
			SuccessRate:    defaultSyncSuccessRate,
			LatencyMS:      defaultSyncLatencyMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
