package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateToken(); err != nil {
		return err
	}
	if err := c.validatePolling(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateService() error {
	if c.Service.BaseURL == "" {
		return errors.New("service.base_url must be set")
	}
	if !strings.HasPrefix(c.Service.BaseURL, "http://") && !strings.HasPrefix(c.Service.BaseURL, "https://") {
		return fmt.Errorf("service.base_url must start with http:// or https:// (got %q)", c.Service.BaseURL)
	}
	if c.Service.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/veribatch/config.toml"
		}
		return fmt.Errorf("service.api_key is required. Edit %s (create with 'veribatch config init')", defaultPath)
	}
	return ensurePositiveMap(map[string]int{
		"service.request_timeout": c.Service.RequestTimeout,
		"service.retry_delay":     c.Service.RetryDelay,
	})
}

func (c *Config) validateToken() error {
	if c.Token.TTL <= 0 {
		return errors.New("token.ttl must be positive (seconds)")
	}
	return nil
}

func (c *Config) validatePolling() error {
	return ensurePositiveMap(map[string]int{
		"polling.interval":     c.Polling.Interval,
		"polling.max_attempts": c.Polling.MaxAttempts,
	})
}

func (c *Config) validateBatch() error {
	if c.Batch.MaxSize < 1 {
		return errors.New("batch.max_size must be >= 1")
	}
	if c.Batch.RetentionMinutes < 1 {
		return errors.New("batch.retention_minutes must be >= 1")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
