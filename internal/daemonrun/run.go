// Package daemonrun wires configuration, logging, and the daemon components
// together for the veribatchd process.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"veribatch/internal/batch"
	"veribatch/internal/config"
	"veribatch/internal/daemon"
	"veribatch/internal/logging"
	"veribatch/internal/onekey"
	"veribatch/internal/registry"
	"veribatch/internal/stats"
	"veribatch/internal/token"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the veribatch daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("veribatch-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update veribatch.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "veribatchd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *stats.Store
	if cfg.Stats.Enabled {
		store, err = stats.Open(cfg)
		if err != nil {
			logger.Error("open stats store", logging.Error(err))
			return err
		}
	}

	guard, err := token.NewGuard(cfg)
	if err != nil {
		return fmt.Errorf("init token guard: %w", err)
	}
	verifier, err := onekey.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init verification client: %w", err)
	}
	orch := batch.NewOrchestrator(cfg, guard, verifier, outcomeRecorder(store), logger)
	reg := registry.New(cfg, orch, submissionRecorder(store), logger)

	d, err := daemon.New(cfg, reg, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	logger.Info("veribatch daemon ready",
		logging.String("address", d.Addr()),
		logging.String("log_file", logPath))

	<-signalCtx.Done()
	logger.Info("veribatch daemon shutting down")
	return nil
}

// outcomeRecorder avoids a non-nil interface wrapping a nil *stats.Store.
func outcomeRecorder(store *stats.Store) batch.OutcomeRecorder {
	if store == nil {
		return nil
	}
	return store
}

func submissionRecorder(store *stats.Store) registry.SubmissionRecorder {
	if store == nil {
		return nil
	}
	return store
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "veribatch.log")
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
