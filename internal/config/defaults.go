package config

const (
	defaultDataDir   = "~/.local/share/resave"
	defaultLogDir    = "~/.local/share/resave/logs"
	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultProviderBaseURL       = "https://webapi.115.com"
	defaultProviderUserAgent     = "Mozilla/5.0 resave/0.1"
	defaultProviderTimeout       = 30
	defaultProviderRetryAttempts = 3
	defaultProviderRetryDelay    = 5
	defaultManagedDir            = "/shares"

	defaultReceiveBatchSize    = 500
	defaultCheckpointFiles     = 10000
	defaultShareSplitLimit     = 10000
	defaultStabilizeAttempts   = 10
	defaultStabilizeInterval   = 2
	defaultBatchPauseMin       = 2
	defaultBatchPauseMax       = 3
	defaultPendingPollInterval = 300
	defaultPendingPollAttempts = 36
	defaultThrottleCooldown    = 3600

	defaultCheckpointUtilization = 0.90
	defaultBatchFreeFloor        = 0.10
	defaultDirCleanupInterval    = 1800
	defaultTrashCleanupInterval  = 7200

	defaultJobMinDelay        = 5
	defaultJobMaxDelay        = 15
	defaultPauseSettleTimeout = 60
	defaultShutdownWait       = 30
	defaultDriverPollInterval = 5
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Provider: Provider{
			BaseURL:        defaultProviderBaseURL,
			UserAgent:      defaultProviderUserAgent,
			RequestTimeout: defaultProviderTimeout,
			RetryAttempts:  defaultProviderRetryAttempts,
			RetryDelay:     defaultProviderRetryDelay,
			ManagedDir:     defaultManagedDir,
		},
		Transfer: Transfer{
			ReceiveBatchSize:    defaultReceiveBatchSize,
			CheckpointFiles:     defaultCheckpointFiles,
			ShareSplitLimit:     defaultShareSplitLimit,
			StabilizeAttempts:   defaultStabilizeAttempts,
			StabilizeInterval:   defaultStabilizeInterval,
			BatchPauseMin:       defaultBatchPauseMin,
			BatchPauseMax:       defaultBatchPauseMax,
			PendingPollInterval: defaultPendingPollInterval,
			PendingPollAttempts: defaultPendingPollAttempts,
			ThrottleCooldown:    defaultThrottleCooldown,
		},
		Capacity: Capacity{
			CheckpointUtilization: defaultCheckpointUtilization,
			BatchFreeFloor:        defaultBatchFreeFloor,
			DirCleanupInterval:    defaultDirCleanupInterval,
			TrashCleanupInterval:  defaultTrashCleanupInterval,
		},
		Jobs: Jobs{
			DefaultMinDelay:    defaultJobMinDelay,
			DefaultMaxDelay:    defaultJobMaxDelay,
			PauseSettleTimeout: defaultPauseSettleTimeout,
			ShutdownWait:       defaultShutdownWait,
			DriverPollInterval: defaultDriverPollInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Links:          true,
			Jobs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
