package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"avatarcast/internal/catalog"
	"avatarcast/internal/config"
	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/journal"
	"avatarcast/internal/logging"
	"avatarcast/internal/notifications"
	"avatarcast/internal/services/avatarapi"
	"avatarcast/internal/storage"
)

// Stack is the assembled runtime.
type Stack struct {
	Config       *config.Config
	Logger       *slog.Logger
	Provider     *avatarapi.Client
	Catalog      *catalog.Cache
	Orchestrator *jobs.Orchestrator
	Store        storage.Store
	Pipeline     *export.Pipeline
	Journal      *journal.Store
	Notifier     *notifications.JobNotifier
	Runner       *Runner
}

type stackOptions struct {
	httpClient *http.Client
	store      storage.Store
	notify     notifications.Service
	settings   *jobs.Settings
	noJournal  bool
}

// StackOption customizes NewStack.
type StackOption func(*stackOptions)

// WithHTTPClient overrides the provider HTTP client.
func WithHTTPClient(client *http.Client) StackOption {
	return func(o *stackOptions) { o.httpClient = client }
}

// WithStore supplies a prebuilt storage backend.
func WithStore(store storage.Store) StackOption {
	return func(o *stackOptions) { o.store = store }
}

// WithNotificationService overrides the notification transport.
func WithNotificationService(svc notifications.Service) StackOption {
	return func(o *stackOptions) { o.notify = svc }
}

// WithJobSettings overrides orchestrator timing derived from config.
func WithJobSettings(settings jobs.Settings) StackOption {
	return func(o *stackOptions) { o.settings = &settings }
}

// WithoutJournal skips opening the journal even when config enables it.
func WithoutJournal() StackOption {
	return func(o *stackOptions) { o.noJournal = true }
}

// NewStack assembles every component from cfg. The orchestrator is not started.
func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...StackOption) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	options := stackOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	var clientOpts []avatarapi.Option
	if options.httpClient != nil {
		clientOpts = append(clientOpts, avatarapi.WithHTTPClient(options.httpClient))
	}
	client := ProviderClient(cfg, clientOpts...)

	stack := &Stack{Config: cfg, Logger: logger, Provider: client}
	stack.Catalog = catalog.New(client, logger, catalog.WithTTL(time.Duration(cfg.Catalog.TTLSeconds)*time.Second))

	stack.Store = options.store
	if stack.Store == nil {
		store, err := storage.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		stack.Store = store
	}

	if cfg.Jobs.Journal && !options.noJournal {
		store, err := journal.Open(ctx, cfg.JournalPath())
		if err != nil {
			_ = stack.Store.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		stack.Journal = store
	}

	svc := options.notify
	if svc == nil {
		svc = notifications.NewService(cfg)
	}
	stack.Notifier = notifications.NewJobNotifier(svc, logger)

	settings := jobs.SettingsFromConfig(cfg)
	if options.settings != nil {
		settings = *options.settings
	}
	orchOpts := []jobs.Option{jobs.WithNotifier(stack.Notifier)}
	if stack.Journal != nil {
		orchOpts = append(orchOpts, jobs.WithJournal(stack.Journal))
	}
	stack.Orchestrator = jobs.New(client, stack.Catalog, settings, logger, orchOpts...)

	downloader := export.NewHTTPDownloader(time.Duration(cfg.Export.DownloadTimeoutSeconds) * time.Second)
	publisher := export.NewStoragePublisher(stack.Store, export.WithDownloader(downloader))
	stack.Pipeline = export.New(
		export.PresetsFromConfig(cfg.Export.Presets),
		cfg.Export.Destinations,
		stack.Orchestrator,
		publisher,
		cfg.Export.Workers,
		logger,
	)

	runnerOpts := []RunnerOption{WithExportNotifier(stack.Notifier)}
	if stack.Journal != nil {
		runnerOpts = append(runnerOpts, WithBatchRecorder(stack.Journal))
	}
	stack.Runner = NewRunner(stack.Orchestrator, stack.Pipeline, logger, runnerOpts...)
	return stack, nil
}

// ProviderClient builds the provider API client from configuration.
func ProviderClient(cfg *config.Config, opts ...avatarapi.Option) *avatarapi.Client {
	return avatarapi.NewClient(avatarapi.Config{
		BaseURL:            cfg.Provider.BaseURL,
		APIKey:             cfg.Provider.APIKey,
		BearerToken:        cfg.Provider.BearerToken,
		TimeoutSeconds:     cfg.Provider.TimeoutSeconds,
		RateLimitPerSecond: cfg.Provider.RateLimitPerSecond,
		RateBurst:          cfg.Provider.RateBurst,
	}, opts...)
}

// Restore loads journaled jobs into the orchestrator. With resume false only
// terminal jobs are loaded, which makes past results exportable without
// polling work owned by another process.
func (s *Stack) Restore(ctx context.Context, resume bool) (int, error) {
	if s.Journal == nil {
		return 0, nil
	}
	loaded, err := s.Journal.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	if !resume {
		finished := loaded[:0]
		for _, job := range loaded {
			if job.State.Terminal() {
				finished = append(finished, job)
			}
		}
		loaded = finished
	}
	return s.Orchestrator.Restore(ctx, loaded), nil
}

// Close stops background work and releases resources.
func (s *Stack) Close() error {
	if s == nil {
		return nil
	}
	if s.Orchestrator != nil {
		s.Orchestrator.Stop()
	}
	if s.Catalog != nil {
		s.Catalog.Wait()
	}
	if s.Notifier != nil {
		s.Notifier.Wait()
	}
	var errs []error
	if s.Journal != nil {
		errs = append(errs, s.Journal.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}
