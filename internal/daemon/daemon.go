package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"veribatch/internal/config"
	"veribatch/internal/logging"
	"veribatch/internal/registry"
	"veribatch/internal/stats"
)

// Daemon coordinates the job registry and API server and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	stats    *stats.Store
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	ActiveJobs   int
	RetainedJobs int
	StatsDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. stats may be nil
// when disabled.
func New(cfg *config.Config, reg *registry.Registry, statsStore *stats.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || reg == nil || logger == nil {
		return nil, errors.New("daemon requires config, registry, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "veribatchd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		registry: reg,
		stats:    statsStore,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, starts the registry, and serves the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another veribatch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.registry.Start(runCtx)

	if err := d.api.start(runCtx); err != nil {
		d.registry.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API, the registry, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.registry.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the stats store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.stats != nil {
		return d.stats.Close()
	}
	return nil
}

// Addr returns the API listen address, empty before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		ActiveJobs:   d.registry.ActiveCount(),
		RetainedJobs: len(d.registry.List()),
		LockFilePath: d.lockPath,
	}
	if d.stats != nil {
		status.StatsDBPath = d.stats.Path()
	}
	return status
}
