package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"avatarcast/internal/config"
	"avatarcast/internal/daemon"
	"avatarcast/internal/logging"
	"avatarcast/internal/workflow"
)

// journalRetention bounds how long finished jobs stay in the journal.
const journalRetention = 30 * 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the avatarcast daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("avatarcast-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.DaemonLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update avatarcast.log link: %v\n", err)
	}
	logConfigSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "avatarcastd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	stack, err := workflow.NewStack(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}
	if stack.Journal != nil {
		if pruned, err := stack.Journal.Prune(signalCtx, time.Now().Add(-journalRetention)); err != nil {
			logger.Warn("journal prune failed", logging.Error(err))
		} else if pruned > 0 {
			logger.Info("pruned finished jobs from journal", logging.Int64("pruned", pruned))
		}
	}

	d, err := daemon.New(cfg, stack, logger)
	if err != nil {
		_ = stack.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed",
			"daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api_bind address"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("avatarcast daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("provider_base_url", cfg.Provider.BaseURL),
		logging.Bool("provider_key_present", strings.TrimSpace(cfg.Provider.APIKey) != ""),
		logging.Bool("bearer_token_present", strings.TrimSpace(cfg.Provider.BearerToken) != ""),
		logging.Float64("rate_limit_per_second", cfg.Provider.RateLimitPerSecond),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.Bool("journal", cfg.Jobs.Journal),
		logging.Int("poll_workers", cfg.Jobs.PollWorkers),
		logging.Int("export_workers", cfg.Export.Workers),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_auth", cfg.Paths.APIToken != ""),
		logging.Bool("notifications", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
