package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"avatarcast/internal/api"
	"avatarcast/internal/config"
	"avatarcast/internal/logging"
	"avatarcast/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	stack  *workflow.Stack
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// New constructs a daemon over an assembled stack.
func New(cfg *config.Config, stack *workflow.Stack, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || stack == nil {
		return nil, errors.New("daemon requires config and workflow stack")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		stack:    stack,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg.Paths.APIBind, cfg.Paths.APIToken, d, logger)
	return d, nil
}

// Start acquires the lock, restores journaled jobs, and launches the
// orchestrator and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another avatarcast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	restored, err := d.stack.Restore(runCtx, true)
	if err != nil {
		logging.WarnWithContext(d.logger, "journal restore failed",
			"journal_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect or delete "+d.cfg.JournalPath()),
			logging.String(logging.FieldImpact, "jobs from the previous run are not resumed"),
		)
	}

	if err := d.stack.Orchestrator.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.stack.Orchestrator.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("avatarcast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.Addr()),
		logging.Int("restored_jobs", restored),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	d.stack.Orchestrator.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("avatarcast daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the stack.
func (d *Daemon) Close() error {
	d.Stop()
	return d.stack.Close()
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		LockFilePath:   d.lockPath,
		StorageBackend: d.stack.Store.Backend(),
		Jobs:           api.StateCounts(d.stack.Orchestrator.Stats()),
		Catalog:        api.FromCatalogStats(d.stack.Catalog.Stats()),
	}
	if !d.startedAt.IsZero() {
		status.StartedAt = d.startedAt.UTC().Format(time.RFC3339)
	}
	if d.stack.Journal != nil {
		status.JournalPath = d.stack.Journal.Path()
	}
	return status
}
