package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"hopper/internal/ack"
	"hopper/internal/logging"
	"hopper/internal/outcome"
	"hopper/internal/services"
)

// Options configures a Runner.
type Options struct {
	Credentials       Credentials
	InitiationTimeout time.Duration
	CompletionTimeout time.Duration
	Classifier        ack.Classifier
	Transports        TransportFactory
	Logger            *slog.Logger

	// OnState is invoked on every state change. It runs on the session goroutine.
	OnState func(path string, state State)
}

// Runner produces a fresh session for every file.
type Runner struct {
	opts Options
}

// NewRunner validates options and returns a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Transports == nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "transport factory is required", nil)
	}
	if opts.InitiationTimeout <= 0 || opts.CompletionTimeout <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "stage timeouts must be positive", nil)
	}
	if opts.Classifier == nil {
		opts.Classifier = ack.JSONClassifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Runner{opts: opts}, nil
}

// Run uploads path and returns exactly one outcome. The transport opened for
// the upload is closed before Run returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context, path string) outcome.Outcome {
	if _, ok := services.FilePathFromContext(ctx); !ok {
		ctx = services.WithFilePath(ctx, path)
	}
	s := &session{
		opts:   r.opts,
		path:   path,
		state:  StateIdle,
		start:  time.Now(),
		logger: logging.WithContext(ctx, r.opts.Logger),
	}
	return s.run(ctx)
}

type session struct {
	opts      Options
	path      string
	state     State
	start     time.Time
	logger    *slog.Logger
	transport Transport

	initiation ack.Initiation
	// early holds completions seen before the initiation acknowledgment.
	early []ack.Completion
}

// failure carries a terminal reason out of a stage.
type failure struct {
	reason outcome.Reason
	detail string
}

func (f *failure) Error() string { return fmt.Sprintf("%s: %s", f.reason, f.detail) }

func fail(reason outcome.Reason, format string, args ...any) *failure {
	return &failure{reason: reason, detail: fmt.Sprintf(format, args...)}
}

func (s *session) run(ctx context.Context) outcome.Outcome {
	defer s.closeTransport()

	result, err := s.drive(ctx)
	lastState := s.state
	s.advance(StateTerminal)
	elapsed := time.Since(s.start)

	if err != nil {
		var f *failure
		if !errors.As(err, &f) {
			f = fail(outcome.ReasonSubmissionError, "%v", err)
		}
		if f.reason != outcome.ReasonAborted {
			logging.WarnWithContext(s.logger, "upload session failed", "session_failed",
				logging.String(logging.FieldReason, string(f.reason)),
				logging.String("last_state", string(lastState)),
				logging.Duration("elapsed", elapsed),
				logging.String("detail", f.detail),
				logging.String(logging.FieldErrorHint, f.reason.Hint()),
				logging.String(logging.FieldImpact, "file left in watch folder"),
			)
		}
		return outcome.Failure(f.reason, f.detail).WithDiagnostics(string(lastState), elapsed)
	}

	s.logger.Info("upload session completed",
		logging.String(logging.FieldEventType, "session_completed"),
		logging.String("remote_id", result.RemoteID()),
		logging.String("remote_url", result.RemoteURL()),
		logging.Duration("elapsed", elapsed),
	)
	return result.WithDiagnostics(string(lastState), elapsed)
}

func (s *session) drive(ctx context.Context) (outcome.Outcome, error) {
	size := fileSize(s.path)

	s.advance(StateAuthenticating)
	if err := s.authenticate(ctx); err != nil {
		return outcome.Outcome{}, err
	}

	s.advance(StateSubmitting)
	if err := s.submit(ctx); err != nil {
		return outcome.Outcome{}, err
	}

	s.advance(StateAwaitingInitiation)
	if err := s.awaitInitiation(ctx); err != nil {
		return outcome.Outcome{}, err
	}
	if size > 0 && size > s.initiation.MaxSize {
		return outcome.Outcome{}, fail(outcome.ReasonSubmissionError,
			"file is %d bytes but the remote accepts at most %d", size, s.initiation.MaxSize)
	}

	s.advance(StateAwaitingCompletion)
	done, err := s.awaitCompletion(ctx)
	if err != nil {
		return outcome.Outcome{}, err
	}
	detail := fmt.Sprintf("remote state %s", done.State)
	return outcome.Success(done.RemoteID, done.RemoteURL, detail), nil
}

func (s *session) authenticate(ctx context.Context) error {
	if !s.opts.Credentials.Present() {
		return fail(outcome.ReasonUnauthenticated, "no credentials configured")
	}
	transport, err := s.opts.Transports(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fail(outcome.ReasonAborted, "shutdown while opening transport")
		}
		return fail(outcome.ReasonSubmissionError, "open transport: %v", err)
	}
	s.transport = transport

	if err := s.transport.Authenticate(ctx, s.opts.Credentials); err != nil {
		if ctx.Err() != nil {
			return fail(outcome.ReasonAborted, "shutdown during authentication")
		}
		return fail(outcome.ReasonUnauthenticated, "%v", err)
	}
	return nil
}

func (s *session) submit(ctx context.Context) error {
	if err := s.transport.Submit(ctx, s.path); err != nil {
		if ctx.Err() != nil {
			return fail(outcome.ReasonAborted, "shutdown during submission")
		}
		return fail(outcome.ReasonSubmissionError, "%v", err)
	}
	return nil
}

func (s *session) awaitInitiation(ctx context.Context) error {
	stageCtx, cancel := context.WithTimeout(ctx, s.opts.InitiationTimeout)
	defer cancel()

	for {
		sig, err := s.nextSignal(stageCtx)
		if err != nil {
			return s.stageError(ctx, stageCtx, err, outcome.ReasonInitiationTimeout, outcome.ReasonSubmissionError, s.opts.InitiationTimeout)
		}
		switch sig.Kind {
		case ack.KindInitiation:
			s.initiation = sig.Initiation
			s.logger.Debug("initiation acknowledged",
				logging.String("transfer_id", sig.Initiation.TransferID),
				logging.Int64("max_size", sig.Initiation.MaxSize),
			)
			return nil
		case ack.KindCompletion:
			s.early = append(s.early, sig.Completion)
			s.logger.Debug("holding completion received before initiation",
				logging.String("remote_id", sig.Completion.RemoteID),
			)
		}
	}
}

func (s *session) awaitCompletion(ctx context.Context) (ack.Completion, error) {
	for _, c := range s.early {
		if s.acceptCompletion(c) {
			return c, nil
		}
	}
	s.early = nil

	stageCtx, cancel := context.WithTimeout(ctx, s.opts.CompletionTimeout)
	defer cancel()

	for {
		sig, err := s.nextSignal(stageCtx)
		if err != nil {
			return ack.Completion{}, s.stageError(ctx, stageCtx, err, outcome.ReasonCompletionTimeout, outcome.ReasonCompletionTimeout, s.opts.CompletionTimeout)
		}
		if sig.Kind == ack.KindCompletion && s.acceptCompletion(sig.Completion) {
			return sig.Completion, nil
		}
	}
}

// acceptCompletion applies the success criterion: the completion must belong
// to this transfer and carry a usable reference.
func (s *session) acceptCompletion(c ack.Completion) bool {
	if !c.Correlates(s.initiation.TransferID) {
		s.logger.Debug("ignoring completion for another transfer",
			logging.String("transfer_id", c.TransferID),
		)
		return false
	}
	if !c.HasReference() {
		s.logger.Debug("ignoring completion without reference",
			logging.String("remote_id", c.RemoteID),
			logging.String("remote_state", c.State),
		)
		return false
	}
	return true
}

func (s *session) nextSignal(ctx context.Context) (ack.Signal, error) {
	resp, err := s.transport.Next(ctx)
	if err != nil {
		return ack.Signal{}, err
	}
	return s.opts.Classifier.Classify(resp), nil
}

// stageError maps a failed wait to a terminal reason. Parent cancellation is
// shutdown, stage deadline expiry is the stage timeout, anything else is a
// broken transport.
func (s *session) stageError(parent, stage context.Context, err error, timeoutReason, brokenReason outcome.Reason, limit time.Duration) error {
	if parent.Err() != nil {
		return fail(outcome.ReasonAborted, "shutdown while %s", s.state)
	}
	if stage.Err() != nil {
		return fail(timeoutReason, "no acknowledgment within %s", limit)
	}
	return fail(brokenReason, "response stream failed: %v", err)
}

func (s *session) advance(next State) {
	if !s.state.canAdvance(next) {
		return
	}
	prev := s.state
	s.state = next
	s.logger.Debug("session state",
		logging.String(logging.FieldStage, string(next)),
		logging.String("previous", string(prev)),
	)
	if s.opts.OnState != nil {
		s.opts.OnState(s.path, next)
	}
}

func (s *session) closeTransport() {
	if s.transport == nil {
		return
	}
	if err := s.transport.Close(); err != nil && !errors.Is(err, ErrTransportClosed) {
		s.logger.Debug("transport close failed", logging.Error(err))
	}
	s.transport = nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return -1
	}
	return info.Size()
}
