package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hopper/internal/api"
	"hopper/internal/config"
	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/logging"
	"hopper/internal/watch"
)

var (
	// ErrAlreadyRunning is returned when Run is called twice on one Daemon.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrLocked is returned when another process holds the instance lock.
	ErrLocked = errors.New("another hopper instance is already running")
)

// Daemon owns the watcher, controller and API server for one process.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	ctrl    *ingest.Controller
	journal *history.Store

	lockPath string
	// held is a lock taken by the caller before Run. Run leaves it held.
	held *InstanceLock

	running   atomic.Bool
	mu        sync.Mutex
	startedAt time.Time
	api       *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	Pipeline     ingest.Status
	HistoryPath  string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon. journal may be nil.
func New(cfg *config.Config, ctrl *ingest.Controller, journal *history.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || ctrl == nil {
		return nil, errors.New("daemon requires config and ingest controller")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		ctrl:     ctrl,
		journal:  journal,
		lockPath: lockPath,
	}, nil
}

// AdoptLock hands Run a lock the caller already holds, so the process can
// claim the instance before doing any other startup work. The caller stays
// responsible for releasing it.
func (d *Daemon) AdoptLock(lock *InstanceLock) {
	d.mu.Lock()
	d.held = lock
	d.mu.Unlock()
}

// Run acquires the instance lock and processes files until ctx is
// cancelled. It returns nil on a clean shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	d.mu.Lock()
	lock := d.held
	d.mu.Unlock()
	if lock == nil {
		acquired, err := AcquireLock(d.lockPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := acquired.Release(); err != nil {
				logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
					logging.Error(err),
					logging.String("lock", d.lockPath),
					logging.String(logging.FieldErrorHint, "remove the lock file if no hopper process is running"),
					logging.String(logging.FieldImpact, "next start may report the daemon as running"),
				)
			}
		}()
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	srv := newAPIServer(d.cfg.Paths.APIBind, api.NewRouter(api.Options{
		Pipeline: d.ctrl,
		Journal:  d.journalOrNil(),
		Runtime: api.RuntimeInfo{
			PID:          os.Getpid(),
			StartedAt:    d.startedAt,
			WatchDir:     d.cfg.Paths.WatchDir,
			UploadedDir:  d.cfg.UploadedDir(),
			HistoryPath:  d.cfg.HistoryPath(),
			LockFilePath: d.lockPath,
		},
		Logger: d.logger,
	}), d.logger)
	if err := srv.start(); err != nil {
		return err
	}
	d.mu.Lock()
	d.api = srv
	d.mu.Unlock()
	defer srv.stop()

	watcher := watch.New(watch.Options{
		Dir:         d.cfg.Paths.WatchDir,
		ExcludeDir:  d.cfg.UploadedDir(),
		Debounce:    d.cfg.Debounce(),
		ScanOnStart: d.cfg.Ingest.ScanOnStart,
		Logger:      d.logger,
	}, func(path string) { d.ctrl.FileAdded(path) })

	d.logger.Info("hopper daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.String("uploaded_dir", d.cfg.UploadedDir()),
		logging.String("lock", d.lockPath),
		logging.String("api", srv.address()),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return d.ctrl.Run(groupCtx) })
	group.Go(func() error { return watcher.Run(groupCtx) })
	err = group.Wait()

	d.logger.Info("hopper daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool { return d.running.Load() }

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	started := d.startedAt
	srv := d.api
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		StartedAt:    started,
		Pipeline:     d.ctrl.Status(),
		HistoryPath:  d.cfg.HistoryPath(),
		LockFilePath: d.lockPath,
		APIAddress:   srv.address(),
	}
}

// journalOrNil avoids handing the router a typed nil interface.
func (d *Daemon) journalOrNil() api.Journal {
	if d.journal == nil {
		return nil
	}
	return d.journal
}
