package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	validAspectRatios = map[string]struct{}{"16:9": {}, "9:16": {}, "1:1": {}}
	validBitrateTiers = map[string]struct{}{"low": {}, "medium": {}, "high": {}}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/avatarcast/config.toml"
		}
		return fmt.Errorf("provider.api_key is required. Set AVATARCAST_API_KEY env var or edit %s (create with 'avatarcast config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Provider.BaseURL, "http://") && !strings.HasPrefix(c.Provider.BaseURL, "https://") {
		return fmt.Errorf("provider.base_url must be an http(s) URL, got %q", c.Provider.BaseURL)
	}
	if c.Provider.RateLimitPerSecond < 0 {
		return errors.New("provider.rate_limit_per_second must be >= 0 (0 disables limiting)")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if err := ensurePositiveMap(map[string]int{
		"jobs.poll_interval_seconds":      c.Jobs.PollIntervalSeconds,
		"jobs.backoff_base_seconds":       c.Jobs.BackoffBaseSeconds,
		"jobs.backoff_max_seconds":        c.Jobs.BackoffMaxSeconds,
		"jobs.timeout_seconds":            c.Jobs.TimeoutSeconds,
		"jobs.submit_timeout_seconds":     c.Jobs.SubmitTimeoutSeconds,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
		"catalog.ttl_seconds":             c.Catalog.TTLSeconds,
		"export.download_timeout_seconds": c.Export.DownloadTimeoutSeconds,
		"provider.timeout_seconds":        c.Provider.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Jobs.BackoffMaxSeconds < c.Jobs.BackoffBaseSeconds {
		return errors.New("jobs.backoff_max_seconds must be >= jobs.backoff_base_seconds")
	}
	return nil
}

func (c *Config) validateExport() error {
	if len(c.Export.Presets) == 0 {
		return errors.New("export.presets must include at least one preset")
	}
	seen := make(map[string]struct{}, len(c.Export.Presets))
	for i, preset := range c.Export.Presets {
		if preset.ID == "" {
			return fmt.Errorf("export.presets[%d].id must be set", i)
		}
		if _, dup := seen[preset.ID]; dup {
			return fmt.Errorf("export.presets: duplicate id %q", preset.ID)
		}
		seen[preset.ID] = struct{}{}
		if _, ok := validAspectRatios[preset.AspectRatio]; !ok {
			return fmt.Errorf("export.presets[%s].aspect_ratio %q must be one of 16:9, 9:16, 1:1", preset.ID, preset.AspectRatio)
		}
		if _, ok := validBitrateTiers[preset.BitrateTier]; !ok {
			return fmt.Errorf("export.presets[%s].bitrate_tier %q must be low, medium or high", preset.ID, preset.BitrateTier)
		}
		if preset.MaxDurationSeconds < 0 {
			return fmt.Errorf("export.presets[%s].max_duration_seconds must be >= 0", preset.ID)
		}
	}
	for _, dest := range c.Export.Destinations {
		if strings.ContainsAny(dest, `/\ `) {
			return fmt.Errorf("export.destinations: %q must not contain slashes or spaces", dest)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
		if c.Storage.Root == "" {
			return errors.New("storage.root must be set for the filesystem backend")
		}
	case StorageS3:
		if c.Storage.S3Endpoint == "" {
			return errors.New("storage.s3_endpoint must be set when storage.backend is s3")
		}
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket must be set when storage.backend is s3")
		}
		if c.Storage.S3AccessKey == "" || c.Storage.S3SecretKey == "" {
			return errors.New("storage.s3_access_key and storage.s3_secret_key must be set when storage.backend is s3 (or set AVATARCAST_S3_ACCESS_KEY/AVATARCAST_S3_SECRET_KEY)")
		}
	case StorageNATS:
		if c.Storage.NATSURL == "" {
			return errors.New("storage.nats_url must be set when storage.backend is nats")
		}
	default:
		return fmt.Errorf("storage.backend %q must be filesystem, s3 or nats", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
