package testsupport

import (
	"path/filepath"
	"testing"

	"resave/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.LogDir = cfgVal.Paths.LogDir
	cfgVal.Provider.Cookie = "UID=test; CID=test; SEID=test"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithCookie overrides the provider session cookie on the test config.
func WithCookie(cookie string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.Cookie = cookie
	}
}

// WithManagedDir overrides the managed directory path on the test config.
func WithManagedDir(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.ManagedDir = path
	}
}

// WithFastTiming shrinks pipeline delays so tests do not sleep.
func WithFastTiming() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfer.BatchPauseMin = 0
		b.cfg.Transfer.BatchPauseMax = 0
		b.cfg.Transfer.StabilizeInterval = 0
		b.cfg.Jobs.DefaultMinDelay = 0
		b.cfg.Jobs.DefaultMaxDelay = 0
		b.cfg.Jobs.DriverPollInterval = 0
	}
}

// WithPartitionLimits shrinks the receive batch size and checkpoint file
// ceiling so small shares exercise the partitioned path.
func WithPartitionLimits(batchSize, checkpointFiles int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transfer.ReceiveBatchSize = batchSize
		b.cfg.Transfer.CheckpointFiles = checkpointFiles
	}
}

// WithCleanupThreshold overrides the used-space ceiling that trips cleanups.
func WithCleanupThreshold(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capacity.CleanupThresholdBytes = bytes
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
