package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProvider()
	c.normalizeCatalog()
	c.normalizeJobs()
	c.normalizeExport()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("AVATARCAST_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeProvider() {
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	if c.Provider.APIKey == "" {
		if value, ok := os.LookupEnv("AVATARCAST_API_KEY"); ok {
			c.Provider.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HEYGEN_API_KEY"); ok {
			c.Provider.APIKey = strings.TrimSpace(value)
		}
	}
	c.Provider.BearerToken = strings.TrimSpace(c.Provider.BearerToken)
	if c.Provider.BearerToken == "" {
		if value, ok := os.LookupEnv("AVATARCAST_BEARER_TOKEN"); ok {
			c.Provider.BearerToken = strings.TrimSpace(value)
		}
	}
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = defaultProviderTimeoutSeconds
	}
	if c.Provider.RateBurst <= 0 {
		c.Provider.RateBurst = defaultProviderRateBurst
	}
}

func (c *Config) normalizeCatalog() {
	if c.Catalog.TTLSeconds <= 0 {
		c.Catalog.TTLSeconds = defaultCatalogTTLSeconds
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.TickIntervalMillis <= 0 {
		c.Jobs.TickIntervalMillis = defaultTickIntervalMillis
	}
	if c.Jobs.PollWorkers <= 0 {
		c.Jobs.PollWorkers = defaultPollWorkers
	}
}

func (c *Config) normalizeExport() {
	if c.Export.Workers <= 0 {
		c.Export.Workers = defaultExportWorkers
	}
	if c.Export.DownloadTimeoutSeconds <= 0 {
		c.Export.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}

	destinations := make([]string, 0, len(c.Export.Destinations))
	seen := make(map[string]struct{}, len(c.Export.Destinations))
	for _, dest := range c.Export.Destinations {
		normalized := strings.ToLower(strings.TrimSpace(dest))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		destinations = append(destinations, normalized)
	}
	if len(destinations) == 0 {
		destinations = DefaultDestinations()
	}
	c.Export.Destinations = destinations

	if len(c.Export.Presets) == 0 {
		c.Export.Presets = DefaultPresets()
		return
	}
	for i := range c.Export.Presets {
		preset := &c.Export.Presets[i]
		preset.ID = strings.ToLower(strings.TrimSpace(preset.ID))
		preset.AspectRatio = strings.TrimSpace(preset.AspectRatio)
		preset.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(preset.Container), "."))
		if preset.Container == "" {
			preset.Container = "mp4"
		}
		preset.BitrateTier = strings.ToLower(strings.TrimSpace(preset.BitrateTier))
		if preset.BitrateTier == "" {
			preset.BitrateTier = "medium"
		}
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFilesystem
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		c.Storage.Root = defaultStorageRoot
	}
	var err error
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Storage.S3Endpoint = strings.TrimSpace(c.Storage.S3Endpoint)
	c.Storage.S3Bucket = strings.TrimSpace(c.Storage.S3Bucket)
	c.Storage.S3Region = strings.TrimSpace(c.Storage.S3Region)
	if c.Storage.S3AccessKey == "" {
		if value, ok := os.LookupEnv("AVATARCAST_S3_ACCESS_KEY"); ok {
			c.Storage.S3AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.S3SecretKey == "" {
		if value, ok := os.LookupEnv("AVATARCAST_S3_SECRET_KEY"); ok {
			c.Storage.S3SecretKey = strings.TrimSpace(value)
		}
	}
	c.Storage.NATSURL = strings.TrimSpace(c.Storage.NATSURL)
	c.Storage.NATSBucket = strings.TrimSpace(c.Storage.NATSBucket)
	if c.Storage.NATSBucket == "" {
		c.Storage.NATSBucket = defaultNATSBucket
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("AVATARCAST_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
