package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hopper/internal/history"
	"hopper/internal/logging"
	"hopper/internal/notifications"
	"hopper/internal/outcome"
	"hopper/internal/queue"
	"hopper/internal/services"
	"hopper/internal/session"
	"hopper/internal/stability"
)

// Stage labels reported by Status.
const (
	StageIdle        = "idle"
	StageStabilizing = "stabilizing"
	StageRelocating  = "relocating"
	StageReporting   = "reporting"
)

// Stabilizer waits for a file to stop growing.
type Stabilizer interface {
	AwaitStable(ctx context.Context, path string, policy stability.Policy) error
}

// Uploader runs one upload session for a file.
type Uploader interface {
	Run(ctx context.Context, path string) outcome.Outcome
}

// Relocator moves an uploaded file out of the watch folder.
type Relocator interface {
	Relocate(sourcePath, destinationDir string) (string, error)
}

// Reporter delivers the single notification for a terminal outcome.
type Reporter interface {
	NotifySuccess(ctx context.Context, r notifications.Report)
	NotifyFailure(ctx context.Context, r notifications.Report)
}

// Journal records terminal outcomes.
type Journal interface {
	Record(ctx context.Context, entry history.Entry) (history.Entry, error)
}

// Options wires a Controller. Uploader, Relocator and Reporter are required.
type Options struct {
	Extensions  []string
	UploadedDir string
	Policy      stability.Policy

	Stabilizer Stabilizer
	Uploader   Uploader
	Relocator  Relocator
	Reporter   Reporter
	Journal    Journal
	Logger     *slog.Logger
}

// Status is a point-in-time view of the controller.
type Status struct {
	Queue     queue.Status `json:"queue"`
	Stage     string       `json:"stage"`
	Processed int64        `json:"processed"`
	Succeeded int64        `json:"succeeded"`
	Failed    int64        `json:"failed"`
	Ignored   int64        `json:"ignored"`
	LastFile  string       `json:"last_file,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// Controller owns the processing queue and the per-file pipeline.
type Controller struct {
	opts       Options
	extensions map[string]struct{}
	logger     *slog.Logger
	queue      *queue.Queue

	mu        sync.Mutex
	stage     string
	processed int64
	succeeded int64
	failed    int64
	ignored   int64
	lastFile  string
	lastError string
}

// New validates options and returns a Controller.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Uploader == nil:
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "init", "uploader is required", nil)
	case opts.Relocator == nil:
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "init", "relocator is required", nil)
	case opts.Reporter == nil:
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "init", "reporter is required", nil)
	case strings.TrimSpace(opts.UploadedDir) == "":
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "init", "uploaded directory is required", nil)
	}
	if opts.Stabilizer == nil {
		opts.Stabilizer = &stability.Detector{Logger: opts.Logger}
	}
	if opts.Policy == (stability.Policy{}) {
		opts.Policy = stability.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	c := &Controller{
		opts:       opts,
		extensions: make(map[string]struct{}, len(opts.Extensions)),
		logger:     logging.NewComponentLogger(opts.Logger, "ingest"),
		stage:      StageIdle,
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extensions[ext] = struct{}{}
	}
	c.queue = queue.New(c.handle, opts.Logger)
	return c, nil
}

// Accepts reports whether path carries an allowed suffix.
func (c *Controller) Accepts(path string) bool {
	if len(c.extensions) == 0 {
		return false
	}
	_, ok := c.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileAdded is the folder-watch entry point. It returns true when the path
// was queued.
func (c *Controller) FileAdded(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if !c.Accepts(path) {
		c.mu.Lock()
		c.ignored++
		c.mu.Unlock()
		c.logger.Debug("ignoring unsupported file",
			logging.String(logging.FieldFile, path),
			logging.String(logging.FieldEventType, "file_ignored"),
		)
		return false
	}
	return c.queue.Enqueue(path)
}

// Run drives the queue worker until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	return c.queue.Run(ctx)
}

// Status reports queue and pipeline progress.
func (c *Controller) Status() Status {
	qs := c.queue.Status()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Queue:     qs,
		Stage:     c.stage,
		Processed: c.processed,
		Succeeded: c.succeeded,
		Failed:    c.failed,
		Ignored:   c.ignored,
		LastFile:  c.lastFile,
		LastError: c.lastError,
	}
}

// TrackState records session progress for Status. It is meant to be passed
// as session.Options.OnState.
func (c *Controller) TrackState(_ string, state session.State) {
	if state == session.StateIdle || state == session.StateTerminal {
		return
	}
	c.setStage(string(state))
}

func (c *Controller) handle(ctx context.Context, entry queue.Entry) {
	c.Process(ctx, entry.Path)
}

// Process runs the full pipeline for one file and returns the outcome that
// was reported. It is used by the queue worker and by one-shot uploads.
func (c *Controller) Process(ctx context.Context, path string) outcome.Outcome {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(services.WithFilePath(ctx, path), requestID)
	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()
	defer c.setStage(StageIdle)

	logger.Info("processing file", logging.String(logging.FieldEventType, "file_started"))

	result, stable := c.stabilize(ctx, path)
	if stable {
		result = c.opts.Uploader.Run(services.WithStage(ctx, "upload"), path)
	}
	if result.Reason() == outcome.ReasonAborted {
		logger.Info("processing abandoned by shutdown",
			logging.String(logging.FieldEventType, "file_abandoned"),
			logging.String("detail", result.Detail()),
		)
		return result
	}
	return c.finish(ctx, logger, path, requestID, started, result)
}

func (c *Controller) stabilize(ctx context.Context, path string) (outcome.Outcome, bool) {
	c.setStage(StageStabilizing)
	start := time.Now()
	err := c.opts.Stabilizer.AwaitStable(services.WithStage(ctx, StageStabilizing), path, c.opts.Policy)
	if err == nil {
		return outcome.Outcome{}, true
	}
	return outcome.Failure(stabilityReason(ctx, err), err.Error()).
		WithDiagnostics(StageStabilizing, time.Since(start)), false
}

func stabilityReason(ctx context.Context, err error) outcome.Reason {
	switch {
	case errors.Is(err, stability.ErrDeleted):
		return outcome.ReasonDeleted
	case errors.Is(err, stability.ErrTimedOut):
		return outcome.ReasonTimedOut
	case errors.Is(err, stability.ErrAccess):
		return outcome.ReasonAccessError
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return outcome.ReasonAborted
	default:
		return outcome.ReasonAccessError
	}
}

func (c *Controller) finish(ctx context.Context, logger *slog.Logger, path, requestID string, started time.Time, result outcome.Outcome) outcome.Outcome {
	if result.IsSuccess() {
		c.setStage(StageRelocating)
		finalPath, err := c.opts.Relocator.Relocate(path, c.opts.UploadedDir)
		if err != nil {
			result = result.RelocationFailed(fmt.Errorf("relocate %s: %w", filepath.Base(path), err))
		} else {
			result = result.Relocated(finalPath)
		}
	}

	c.setStage(StageReporting)
	report := notifications.ReportFromOutcome(path, result)
	if result.IsSuccess() {
		c.opts.Reporter.NotifySuccess(ctx, report)
	} else {
		c.opts.Reporter.NotifyFailure(ctx, report)
	}

	c.record(ctx, logger, path, requestID, started, result)
	c.count(path, result)
	c.logOutcome(logger, result, time.Since(started))
	return result
}

func (c *Controller) record(ctx context.Context, logger *slog.Logger, path, requestID string, started time.Time, result outcome.Outcome) {
	if c.opts.Journal == nil {
		return
	}
	entry := history.Entry{
		Path:          path,
		FinalPath:     result.FinalPath(),
		Status:        history.StatusSuccess,
		Reason:        string(result.Reason()),
		RemoteID:      result.RemoteID(),
		RemoteURL:     result.RemoteURL(),
		Detail:        result.Detail(),
		CorrelationID: requestID,
		StartedAt:     started,
		FinishedAt:    time.Now(),
	}
	if !result.IsSuccess() {
		entry.Status = history.StatusFailure
	}
	if _, err := c.opts.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logger, "failed to journal outcome", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in paths.state_dir"),
			logging.String(logging.FieldImpact, "outcome missing from hopper history"),
		)
	}
}

func (c *Controller) logOutcome(logger *slog.Logger, result outcome.Outcome, elapsed time.Duration) {
	if result.IsSuccess() {
		logger.Info("upload complete",
			logging.String(logging.FieldEventType, "upload_succeeded"),
			logging.String("remote_id", result.RemoteID()),
			logging.String("remote_url", result.RemoteURL()),
			logging.String("final_path", result.FinalPath()),
			logging.Duration("elapsed", elapsed),
		)
		return
	}
	reason := result.Reason()
	impact := "file left in watch folder"
	if reason == outcome.ReasonRelocationFailed {
		impact = "upload succeeded but file left in watch folder"
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldReason, string(reason)),
		logging.String("category", string(reason.Category())),
		logging.String("detail", result.Detail()),
		logging.String("last_state", result.LastState()),
		logging.String("remote_id", result.RemoteID()),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldErrorHint, reason.Hint()),
		logging.String(logging.FieldImpact, impact),
	}
	// These two may leave a copy on the remote, so retrying blindly can duplicate it.
	switch reason {
	case outcome.ReasonCompletionTimeout:
		attrs = append(attrs, logging.Alert("check_remote"))
	case outcome.ReasonRelocationFailed:
		attrs = append(attrs, logging.Alert("manual_move"))
	}
	logging.WarnWithContext(logger, "file failed", "upload_failed", attrs...)
}

func (c *Controller) count(path string, result outcome.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	c.lastFile = path
	if result.IsSuccess() {
		c.succeeded++
		c.lastError = ""
		return
	}
	c.failed++
	c.lastError = result.String()
}

func (c *Controller) setStage(stage string) {
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()
}
