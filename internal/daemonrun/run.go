// Package daemonrun owns the watch process runtime: per-run log files,
// retention, the pid file, signal handling and construction of the daemon.
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

	"hopper/internal/config"
	"hopper/internal/daemon"
	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/logging"
	"hopper/internal/notifications"
	"hopper/internal/preflight"
	"hopper/internal/session"
	"hopper/internal/transport/browser"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool

	// Transports replaces the browser transport. Used by tests.
	Transports session.TransportFactory
	// Quiet drops the stdout log sink.
	Quiet bool
}

// Run starts the hopper watch loop and blocks until SIGINT/SIGTERM or
// cmdCtx is cancelled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("hopper-%s.log", runID))
	outputs := []string{logPath}
	if !opts.Quiet {
		outputs = append([]string{"stdout"}, outputs...)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		logging.ErrorWithContext(logger, "hopper is already running", "instance_locked",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other hopper watch or upload before starting another"),
		)
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.WarnWithContext(logger, "failed to release instance lock", "lock_release_failed",
				logging.Error(err),
				logging.String("lock", lock.Path()),
				logging.String(logging.FieldErrorHint, "remove the lock file if no hopper process is running"),
				logging.String(logging.FieldImpact, "next start may report the daemon as running"),
			)
		}
	}()

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update hopper.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "hopper-*.log", Exclude: []string{logPath}},
	)
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "hopper.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.ErrorWithContext(logger, "open history store", "history_open_failed", logging.Error(err))
		return err
	}
	defer store.Close()
	pruneHistory(signalCtx, logger, store, cfg.Logging.RetentionDays)

	transports := opts.Transports
	if transports == nil {
		transports = browser.NewFactory(browser.OptionsFromConfig(cfg), logger)
	}
	notifier := notifications.NewNotifier(notifications.NewService(cfg, logger), logger)
	ctrl, err := ingest.NewFromConfig(cfg, ingest.Dependencies{
		Transports: transports,
		Reporter:   notifier,
		Journal:    store,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create ingest controller: %w", err)
	}

	d, err := daemon.New(cfg, ctrl, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	d.AdoptLock(lock)
	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("hopper shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		switch {
		case !result.Passed:
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "run hopper preflight for details"),
				logging.String(logging.FieldImpact, "uploads may fail until fixed"),
			)
		case result.Warning:
			logging.WarnWithContext(logger, "preflight check warning", "preflight_warning",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "free up space on the watch volume"),
				logging.String(logging.FieldImpact, "large recordings may fail to relocate"),
			)
		default:
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
		}
	}
}

// pruneHistory applies log retention to the outcome journal as well.
func pruneHistory(ctx context.Context, logger *slog.Logger, store *history.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old outcomes kept"),
		)
		return
	}
	if removed > 0 {
		logger.Info("pruned history", logging.Int64("removed", removed), logging.Int("retention_days", retentionDays))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "hopper.log")
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

// ReadPID returns the pid recorded by a running daemon, if any.
func ReadPID(cfg *config.Config) (int, bool) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.StateDir, "hopper.pid"))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
