package config

const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
	StorageNATS       = "nats"
)

const (
	defaultStateDir               = "~/.local/share/avatarcast"
	defaultLogDir                 = "~/.local/share/avatarcast/logs"
	defaultStorageRoot            = "~/.local/share/avatarcast/exports"
	defaultAPIBind                = "127.0.0.1:7590"
	defaultProviderBaseURL        = "https://api.heygen.com/v1"
	defaultProviderTimeoutSeconds = 30
	defaultProviderRateLimit      = 5.0
	defaultProviderRateBurst      = 5
	defaultCatalogTTLSeconds      = 900
	defaultTickIntervalMillis     = 500
	defaultPollIntervalSeconds    = 5
	defaultBackoffBaseSeconds     = 2
	defaultBackoffMaxSeconds      = 60
	defaultJobTimeoutSeconds      = 1800
	defaultSubmitTimeoutSeconds   = 60
	defaultPollWorkers            = 4
	defaultExportWorkers          = 3
	defaultDownloadTimeoutSeconds = 300
	defaultNATSBucket             = "avatarcast-exports"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// DefaultPresets returns the compiled-in export presets.
func DefaultPresets() []Preset {
	return []Preset{
		{ID: "youtube-landscape", AspectRatio: "16:9", Container: "mp4", MaxDurationSeconds: 0, BitrateTier: "high"},
		{ID: "shorts-vertical", AspectRatio: "9:16", Container: "mp4", MaxDurationSeconds: 60, BitrateTier: "medium"},
		{ID: "instagram-square", AspectRatio: "1:1", Container: "mp4", MaxDurationSeconds: 90, BitrateTier: "medium"},
		{ID: "web-preview", AspectRatio: "16:9", Container: "webm", MaxDurationSeconds: 300, BitrateTier: "low"},
	}
}

// DefaultDestinations returns the compiled-in export destination names.
func DefaultDestinations() []string {
	return []string{"youtube", "tiktok", "instagram", "website", "archive"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Provider: Provider{
			BaseURL:            defaultProviderBaseURL,
			TimeoutSeconds:     defaultProviderTimeoutSeconds,
			RateLimitPerSecond: defaultProviderRateLimit,
			RateBurst:          defaultProviderRateBurst,
		},
		Catalog: Catalog{
			TTLSeconds: defaultCatalogTTLSeconds,
		},
		Jobs: Jobs{
			TickIntervalMillis:   defaultTickIntervalMillis,
			PollIntervalSeconds:  defaultPollIntervalSeconds,
			BackoffBaseSeconds:   defaultBackoffBaseSeconds,
			BackoffMaxSeconds:    defaultBackoffMaxSeconds,
			TimeoutSeconds:       defaultJobTimeoutSeconds,
			SubmitTimeoutSeconds: defaultSubmitTimeoutSeconds,
			PollWorkers:          defaultPollWorkers,
			Journal:              true,
		},
		Export: Export{
			Workers:                defaultExportWorkers,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			Destinations:           DefaultDestinations(),
			Presets:                DefaultPresets(),
		},
		Storage: Storage{
			Backend:    StorageFilesystem,
			Root:       defaultStorageRoot,
			S3UseSSL:   true,
			NATSBucket: defaultNATSBucket,
		},
		Notifications: Notifications{
			RequestTimeout:  10,
			JobCompleted:    true,
			JobFailed:       true,
			ExportCompleted: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
