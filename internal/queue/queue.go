package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"hopper/internal/logging"
)

// ErrAlreadyRunning is returned when Run is called on a queue whose worker is active.
var ErrAlreadyRunning = errors.New("queue worker already running")

// Handler processes one file to completion. It must return only once the
// file's terminal action is done.
type Handler func(ctx context.Context, entry Entry)

// Entry is a queued path and the time it was accepted.
type Entry struct {
	Path       string    `json:"path"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Status is a point-in-time view of the queue.
type Status struct {
	Running   bool      `json:"running"`
	Depth     int       `json:"depth"`
	Current   *Entry    `json:"current,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Pending   []Entry   `json:"pending,omitempty"`
	Handled   int64     `json:"handled"`
}

// Queue is a FIFO with exactly one consumer.
type Queue struct {
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	pending   []Entry
	current   *Entry
	startedAt time.Time
	known     map[string]struct{}
	running   bool
	handled   int64

	wake chan struct{}
}

// New constructs a Queue that feeds entries to handler.
func New(handler Handler, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		handler: handler,
		logger:  logger,
		known:   make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends path to the tail and returns immediately. It returns false
// when path is already pending or being processed.
func (q *Queue) Enqueue(path string) bool {
	q.mu.Lock()
	if _, dup := q.known[path]; dup {
		q.mu.Unlock()
		q.logger.Debug("path already queued", logging.String(logging.FieldFile, path))
		return false
	}
	entry := Entry{Path: path, EnqueuedAt: time.Now()}
	q.pending = append(q.pending, entry)
	q.known[path] = struct{}{}
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Info("file queued",
		logging.String(logging.FieldEventType, "file_queued"),
		logging.String(logging.FieldFile, path),
		logging.Int("queue_depth", depth),
	)
	q.signal()
	return true
}

// Run drives the worker loop until ctx is cancelled. Entries still pending at
// cancellation are abandoned.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		entry, ok := q.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.wake:
			}
			continue
		}
		q.process(ctx, entry)
	}
}

func (q *Queue) dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Entry{}, false
	}
	entry := q.pending[0]
	q.pending[0] = Entry{}
	q.pending = q.pending[1:]
	q.current = &entry
	q.startedAt = time.Now()
	return entry, true
}

func (q *Queue) process(ctx context.Context, entry Entry) {
	defer q.finish(entry)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(q.logger, "file handler panicked", "handler_panic",
				logging.String(logging.FieldFile, entry.Path),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this as a bug; the file was left in place"),
			)
		}
	}()
	q.handler(ctx, entry)
}

func (q *Queue) finish(entry Entry) {
	q.mu.Lock()
	delete(q.known, entry.Path)
	q.current = nil
	q.startedAt = time.Time{}
	q.handled++
	q.mu.Unlock()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of pending entries, excluding the one in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Current returns the entry being processed, if any.
func (q *Queue) Current() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return Entry{}, false
	}
	return *q.current, true
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Status{
		Running:   q.running,
		Depth:     len(q.pending),
		StartedAt: q.startedAt,
		Pending:   append([]Entry(nil), q.pending...),
		Handled:   q.handled,
	}
	if q.current != nil {
		cur := *q.current
		st.Current = &cur
	}
	return st
}
