package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Provider contains connection settings for the avatar video generation API.
type Provider struct {
	BaseURL            string  `toml:"base_url"`
	APIKey             string  `toml:"api_key"`
	BearerToken        string  `toml:"bearer_token"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	RateBurst          int     `toml:"rate_burst"`
}

// Catalog contains avatar/voice catalog cache settings.
type Catalog struct {
	TTLSeconds int `toml:"ttl_seconds"`
}

// Jobs contains generation job scheduling and polling settings.
type Jobs struct {
	TickIntervalMillis   int  `toml:"tick_interval_ms"`
	PollIntervalSeconds  int  `toml:"poll_interval_seconds"`
	BackoffBaseSeconds   int  `toml:"backoff_base_seconds"`
	BackoffMaxSeconds    int  `toml:"backoff_max_seconds"`
	TimeoutSeconds       int  `toml:"timeout_seconds"`
	SubmitTimeoutSeconds int  `toml:"submit_timeout_seconds"`
	PollWorkers          int  `toml:"poll_workers"`
	Journal              bool `toml:"journal"`
}

// Preset describes a static export preset.
type Preset struct {
	ID                 string `toml:"id"`
	AspectRatio        string `toml:"aspect_ratio"`
	Container          string `toml:"container"`
	MaxDurationSeconds int    `toml:"max_duration_seconds"`
	BitrateTier        string `toml:"bitrate_tier"`
}

// Export contains batch export pipeline settings.
type Export struct {
	Workers                int      `toml:"workers"`
	DownloadTimeoutSeconds int      `toml:"download_timeout_seconds"`
	Destinations           []string `toml:"destinations"`
	Presets                []Preset `toml:"presets"`
}

// Storage selects and configures the blob store export results are written to.
type Storage struct {
	Backend       string `toml:"backend"`
	Root          string `toml:"root"`
	PublicBaseURL string `toml:"public_base_url"`
	S3Endpoint    string `toml:"s3_endpoint"`
	S3Bucket      string `toml:"s3_bucket"`
	S3Region      string `toml:"s3_region"`
	S3AccessKey   string `toml:"s3_access_key"`
	S3SecretKey   string `toml:"s3_secret_key"`
	S3UseSSL      bool   `toml:"s3_use_ssl"`
	NATSURL       string `toml:"nats_url"`
	NATSBucket    string `toml:"nats_bucket"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	JobCompleted    bool   `toml:"job_completed"`
	JobFailed       bool   `toml:"job_failed"`
	ExportCompleted bool   `toml:"export_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for avatarcast.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Provider: avatar generation API endpoint and credentials
//   - Catalog: avatar/voice cache freshness
//   - Jobs: scheduler tick, polling, backoff and timeout budgets
//   - Export: worker count, destinations and presets
//   - Storage: blob store backend for export output
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Provider      Provider      `toml:"provider"`
	Catalog       Catalog       `toml:"catalog"`
	Jobs          Jobs          `toml:"jobs"`
	Export        Export        `toml:"export"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/avatarcast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
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

	projectPath, err := filepath.Abs("avatarcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Storage.Backend == StorageFilesystem && strings.TrimSpace(c.Storage.Root) != "" {
		if err := os.MkdirAll(c.Storage.Root, 0o755); err != nil {
			return fmt.Errorf("create storage root %q: %w", c.Storage.Root, err)
		}
	}
	return nil
}

// JournalPath returns the location of the SQLite job journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "avatarcastd.lock")
}

// DaemonLogPath returns the pointer to the current daemon run's log file.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "avatarcast.log")
}

// PresetByID returns the configured export preset with the given identifier.
func (c *Config) PresetByID(id string) (Preset, bool) {
	id = strings.TrimSpace(id)
	for _, preset := range c.Export.Presets {
		if preset.ID == id {
			return preset, true
		}
	}
	return Preset{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
