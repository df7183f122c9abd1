package config

import (
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.LogDir = c.Paths.LogDir

	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.ManagedDir = strings.TrimSpace(c.Provider.ManagedDir); c.Provider.ManagedDir == "" {
		c.Provider.ManagedDir = defaultManagedDir
	}
	if !strings.HasPrefix(c.Provider.ManagedDir, "/") {
		c.Provider.ManagedDir = "/" + c.Provider.ManagedDir
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = defaultProviderTimeout
	}
	if c.Provider.RetryAttempts <= 0 {
		c.Provider.RetryAttempts = defaultProviderRetryAttempts
	}
	if c.Provider.RetryDelay <= 0 {
		c.Provider.RetryDelay = defaultProviderRetryDelay
	}

	if c.Transfer.ReceiveBatchSize <= 0 {
		c.Transfer.ReceiveBatchSize = defaultReceiveBatchSize
	}
	if c.Transfer.CheckpointFiles <= 0 {
		c.Transfer.CheckpointFiles = defaultCheckpointFiles
	}
	if c.Transfer.ShareSplitLimit <= 0 {
		c.Transfer.ShareSplitLimit = defaultShareSplitLimit
	}
	if c.Transfer.StabilizeAttempts <= 0 {
		c.Transfer.StabilizeAttempts = defaultStabilizeAttempts
	}
	if c.Transfer.StabilizeInterval <= 0 {
		c.Transfer.StabilizeInterval = defaultStabilizeInterval
	}
	if c.Transfer.BatchPauseMin <= 0 {
		c.Transfer.BatchPauseMin = defaultBatchPauseMin
	}
	if c.Transfer.BatchPauseMax < c.Transfer.BatchPauseMin {
		c.Transfer.BatchPauseMax = c.Transfer.BatchPauseMin + 1
	}
	if c.Transfer.PendingPollInterval <= 0 {
		c.Transfer.PendingPollInterval = defaultPendingPollInterval
	}
	if c.Transfer.PendingPollAttempts <= 0 {
		c.Transfer.PendingPollAttempts = defaultPendingPollAttempts
	}
	if c.Transfer.ThrottleCooldown <= 0 {
		c.Transfer.ThrottleCooldown = defaultThrottleCooldown
	}

	if c.Capacity.CheckpointUtilization <= 0 || c.Capacity.CheckpointUtilization > 1 {
		c.Capacity.CheckpointUtilization = defaultCheckpointUtilization
	}
	if c.Capacity.BatchFreeFloor <= 0 || c.Capacity.BatchFreeFloor > 1 {
		c.Capacity.BatchFreeFloor = defaultBatchFreeFloor
	}
	if c.Capacity.DirCleanupInterval <= 0 {
		c.Capacity.DirCleanupInterval = defaultDirCleanupInterval
	}
	if c.Capacity.TrashCleanupInterval <= 0 {
		c.Capacity.TrashCleanupInterval = defaultTrashCleanupInterval
	}

	if c.Jobs.DefaultMinDelay <= 0 {
		c.Jobs.DefaultMinDelay = defaultJobMinDelay
	}
	if c.Jobs.DefaultMaxDelay < c.Jobs.DefaultMinDelay {
		c.Jobs.DefaultMaxDelay = c.Jobs.DefaultMinDelay
	}
	if c.Jobs.PauseSettleTimeout <= 0 {
		c.Jobs.PauseSettleTimeout = defaultPauseSettleTimeout
	}
	if c.Jobs.ShutdownWait <= 0 {
		c.Jobs.ShutdownWait = defaultShutdownWait
	}
	if c.Jobs.DriverPollInterval <= 0 {
		c.Jobs.DriverPollInterval = defaultDriverPollInterval
	}

	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}
