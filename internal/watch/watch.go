// Package watch reports files that appear in the watched folder.
//
// It is deliberately coarse: fsnotify create and write events are debounced
// per path and a path is reported once it has been quiet for the debounce
// period. Readiness is re-verified downstream. Hidden entries, directories and
// anything under the excluded destination folder are never reported.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hopper/internal/logging"
)

// Options configures a Watcher.
type Options struct {
	Dir         string
	ExcludeDir  string
	Debounce    time.Duration
	ScanOnStart bool
	Logger      *slog.Logger
}

// Watcher delivers fileAdded callbacks for a single directory.
type Watcher struct {
	opts    Options
	onFile  func(path string)
	logger  *slog.Logger
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New constructs a Watcher. onFile is called from timer goroutines and must
// not block for long.
func New(opts Options, onFile func(path string)) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	return &Watcher{
		opts:   opts,
		onFile: onFile,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Errors from the event stream are logged
// and never end the watch; only a failure to start watching is returned.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Clean(w.opts.Dir)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch directory %q is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}
	defer w.stopTimers()

	w.logger.Info("watching folder",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("dir", dir),
		logging.Duration("debounce", w.opts.Debounce),
	)

	if w.opts.ScanOnStart {
		w.scan(dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "filesystem watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "files may be missed until the next restart rescans the folder"),
				logging.String(logging.FieldImpact, "new files might not be detected"),
			)
		}
	}
}

// scan reports every eligible file already present, oldest first.
func (w *Watcher) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "startup scan failed", "watch_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the watch folder"),
			logging.String(logging.FieldImpact, "files left by a previous run will not be retried"),
		)
		return
	}

	type found struct {
		path    string
		modTime time.Time
	}
	var files []found
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !w.eligible(path) || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, found{path: path, modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	if len(files) > 0 {
		w.logger.Info("startup scan found files",
			logging.String(logging.FieldEventType, "watch_scan"),
			logging.Int("count", len(files)),
		)
	}
	for _, f := range files {
		w.onFile(f.path)
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.eligible(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// eligible applies the path-level exclusions.
func (w *Watcher) eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if exclude := w.opts.ExcludeDir; exclude != "" {
		clean := filepath.Clean(path)
		exclude = filepath.Clean(exclude)
		if clean == exclude || strings.HasPrefix(clean, exclude+string(os.PathSeparator)) {
			return false
		}
	}
	return true
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		w.fire(path)
	})
}

func (w *Watcher) fire(path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("skipping unreadable path", logging.String(logging.FieldFile, path), logging.Error(err))
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	w.onFile(path)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}
