package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.BaseURL == "" {
		return errors.New("provider.base_url must be set")
	}
	if c.Provider.Cookie == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/resave/config.toml"
		}
		return fmt.Errorf("provider.cookie is required. Set RESAVE_PROVIDER_COOKIE or edit %s (create with 'resave config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.BatchPauseMax < c.Transfer.BatchPauseMin {
		return errors.New("transfer.batch_pause_max must not be below transfer.batch_pause_min")
	}
	if c.Transfer.ShareSplitLimit < c.Transfer.ReceiveBatchSize {
		return errors.New("transfer.share_split_limit must not be below transfer.receive_batch_size")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}
