package config

const (
	defaultVaultDir                = "~/.local/share/casework/vault"
	defaultLogDir                  = "~/.local/share/casework/logs"
	defaultLogRetentionDays        = 60
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultDispatchBuffer          = 64
	defaultProgressWriteIntervalMS = 500
	defaultBusyRetryAttempts       = 5
	defaultBusyRetryInitialMS      = 10
	defaultBusyRetryMaxMS          = 200
	defaultFeedBuffer              = 256
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VaultDir: defaultVaultDir,
			LogDir:   defaultLogDir,
		},
		Queue: Queue{
			DispatchBuffer:          defaultDispatchBuffer,
			ProgressWriteIntervalMS: defaultProgressWriteIntervalMS,
			BusyRetryAttempts:       defaultBusyRetryAttempts,
			BusyRetryInitialMS:      defaultBusyRetryInitialMS,
			BusyRetryMaxMS:          defaultBusyRetryMaxMS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
