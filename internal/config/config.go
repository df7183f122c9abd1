package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Provider contains connection settings for the remote cloud-storage account.
type Provider struct {
	BaseURL string `toml:"base_url"`
	// Cookie is the session credential. Left empty in the config file it is
	// read from the RESAVE_PROVIDER_COOKIE environment variable (optionally
	// loaded from a .env file next to the config).
	Cookie          string `toml:"cookie"`
	UserAgent       string `toml:"user_agent"`
	RequestTimeout  int    `toml:"request_timeout"`
	RetryAttempts   int    `toml:"retry_attempts"`
	RetryDelay      int    `toml:"retry_delay"`
	ManagedDir      string `toml:"managed_dir"`
	RecyclePassword string `toml:"recycle_password"`
}

// Transfer contains tunables for the transfer-and-publish pipeline.
type Transfer struct {
	ReceiveBatchSize    int `toml:"receive_batch_size"`
	CheckpointFiles     int `toml:"checkpoint_files"`
	ShareSplitLimit     int `toml:"share_split_limit"`
	StabilizeAttempts   int `toml:"stabilize_attempts"`
	StabilizeInterval   int `toml:"stabilize_interval"`
	BatchPauseMin       int `toml:"batch_pause_min"`
	BatchPauseMax       int `toml:"batch_pause_max"`
	PendingPollInterval int `toml:"pending_poll_interval"`
	PendingPollAttempts int `toml:"pending_poll_attempts"`
	ThrottleCooldown    int `toml:"throttle_cooldown"`
}

// Capacity contains storage-cleanup thresholds.
type Capacity struct {
	// CleanupThresholdBytes triggers a cleanup when used space exceeds it.
	// Zero means no explicit threshold is configured.
	CleanupThresholdBytes int64 `toml:"cleanup_threshold_bytes"`
	// CheckpointUtilization is the used/total ratio that forces an
	// intermediate publish during a partitioned transfer.
	CheckpointUtilization float64 `toml:"checkpoint_utilization"`
	// BatchFreeFloor is the free/total ratio below which batch-mode checks
	// clean up even without a configured threshold.
	BatchFreeFloor       float64 `toml:"batch_free_floor"`
	DirCleanupInterval   int     `toml:"dir_cleanup_interval"`
	TrashCleanupInterval int     `toml:"trash_cleanup_interval"`
}

// Jobs contains batch job controller timing.
type Jobs struct {
	DefaultMinDelay    int `toml:"default_min_delay"`
	DefaultMaxDelay    int `toml:"default_max_delay"`
	PauseSettleTimeout int `toml:"pause_settle_timeout"`
	ShutdownWait       int `toml:"shutdown_wait"`
	DriverPollInterval int `toml:"driver_poll_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Links          bool   `toml:"links"`
	Jobs           bool   `toml:"jobs"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// API contains the optional local HTTP status endpoint. An empty bind
// address disables the server.
type API struct {
	Bind      string `toml:"bind"`
	AuthToken string `toml:"auth_token"`
}

// Config encapsulates all configuration values for resave.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Provider: remote cloud-storage account and call behavior
//   - Transfer: pipeline limits, stabilization, pending polling, throttle
//   - Capacity: cleanup thresholds and intervals
//   - Jobs: batch controller delays and shutdown bounds
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - API: optional local HTTP status endpoint
type Config struct {
	Paths         Paths         `toml:"paths"`
	Provider      Provider      `toml:"provider"`
	Transfer      Transfer      `toml:"transfer"`
	Capacity      Capacity      `toml:"capacity"`
	Jobs          Jobs          `toml:"jobs"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	API           API           `toml:"api"`

	// LogDir mirrors Paths.LogDir after normalization for convenience.
	LogDir string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/resave/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all paths expanded and defaults applied. The second return value
// is the resolved path, the third reports whether the file existed.
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides(filepath.Dir(resolvedPath))

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvOverrides fills secrets from the environment, consulting a .env
// file beside the config when present. Values set in the config file win,
// then the process environment, then the .env file.
func (c *Config) applyEnvOverrides(configDir string) {
	fileEnv := map[string]string{}
	if configDir != "" {
		if env, err := godotenv.Read(filepath.Join(configDir, ".env")); err == nil {
			fileEnv = env
		}
	}
	lookup := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(fileEnv[key])
	}
	if strings.TrimSpace(c.Provider.Cookie) == "" {
		c.Provider.Cookie = lookup("RESAVE_PROVIDER_COOKIE")
	}
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		c.Notifications.NtfyTopic = lookup("RESAVE_NTFY_TOPIC")
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(defaultPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, true, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves ~ and relative segments in a user-supplied path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists: %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
