package session_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hopper/internal/ack"
	"hopper/internal/outcome"
	"hopper/internal/services"
	"hopper/internal/session"
	"hopper/internal/testsupport"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []session.State
}

func (r *stateRecorder) record(_ string, s session.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []session.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.State(nil), r.states...)
}

func newRunner(t *testing.T, remote *testsupport.FakeRemote, mutate func(*session.Options)) (*session.Runner, *stateRecorder) {
	t.Helper()
	rec := &stateRecorder{}
	opts := session.Options{
		Credentials:       session.Credentials{Username: "tester", Password: "secret"},
		InitiationTimeout: 300 * time.Millisecond,
		CompletionTimeout: 300 * time.Millisecond,
		Transports:        remote.Factory(),
		OnState:           rec.record,
	}
	if mutate != nil {
		mutate(&opts)
	}
	runner, err := session.NewRunner(opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner, rec
}

func recordingPath(t *testing.T) string {
	return testsupport.Recording(t, t.TempDir(), "set.mp3")
}

func TestRunSucceedsThroughAllStates(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.NoiseResponse())
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
		tr.Push(testsupport.NoiseResponse())
		tr.Push(testsupport.CompletionResponse("t-1", "901", "https://remote.test/u/set"))
	}}
	runner, rec := newRunner(t, remote, nil)
	path := recordingPath(t)

	result := runner.Run(context.Background(), path)
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %s", result)
	}
	if result.RemoteID() != "901" || result.RemoteURL() != "https://remote.test/u/set" {
		t.Fatalf("unexpected remote reference: %q %q", result.RemoteID(), result.RemoteURL())
	}
	want := []session.State{
		session.StateAuthenticating,
		session.StateSubmitting,
		session.StateAwaitingInitiation,
		session.StateAwaitingCompletion,
		session.StateTerminal,
	}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("unexpected states %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state %d: got %s want %s", i, got[i], want[i])
		}
	}
	transports := remote.Transports()
	if len(transports) != 1 || !transports[0].Closed() {
		t.Fatal("expected exactly one transport, closed")
	}
	if sub := transports[0].Submitted(); len(sub) != 1 || sub[0] != path {
		t.Fatalf("unexpected submissions %v", sub)
	}
}

func TestRunWithoutCredentialsIsUnauthenticated(t *testing.T) {
	remote := &testsupport.FakeRemote{}
	runner, _ := newRunner(t, remote, func(o *session.Options) { o.Credentials = session.Credentials{} })

	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", result)
	}
	if len(remote.Transports()) != 0 {
		t.Fatal("no transport should be opened without credentials")
	}
}

func TestRunLogsFileOnce(t *testing.T) {
	cases := map[string]func(string) context.Context{
		"path in context": func(path string) context.Context {
			return services.WithFilePath(context.Background(), path)
		},
		"bare context": func(string) context.Context { return context.Background() },
	}
	for name, makeCtx := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			remote := &testsupport.FakeRemote{}
			runner, _ := newRunner(t, remote, func(o *session.Options) {
				o.Credentials = session.Credentials{}
				o.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
			})
			path := recordingPath(t)

			runner.Run(makeCtx(path), path)

			line := strings.TrimSpace(buf.String())
			if !strings.Contains(line, `"event_type":"session_failed"`) {
				t.Fatalf("expected session_failed warning, got %q", line)
			}
			if n := strings.Count(line, `"file":`); n != 1 {
				t.Fatalf("expected one file attribute, got %d in %q", n, line)
			}
		})
	}
}

func TestRunRejectedCredentialsIsUnauthenticated(t *testing.T) {
	remote := &testsupport.FakeRemote{AuthErr: session.ErrRejected}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonUnauthenticated {
		t.Fatalf("expected Unauthenticated, got %s", result)
	}
	if result.LastState() != string(session.StateAuthenticating) {
		t.Fatalf("unexpected last state %q", result.LastState())
	}
	if !remote.AllClosed() {
		t.Fatal("transport must be closed after failure")
	}
}

func TestRunSubmitFailureIsSubmissionError(t *testing.T) {
	remote := &testsupport.FakeRemote{SubmitErr: errors.New("file input not found")}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonSubmissionError {
		t.Fatalf("expected SubmissionError, got %s", result)
	}
	if !remote.AllClosed() {
		t.Fatal("transport must be closed after failure")
	}
}

func TestRunTransportOpenFailureIsSubmissionError(t *testing.T) {
	remote := &testsupport.FakeRemote{OpenErr: errors.New("browser missing")}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonSubmissionError {
		t.Fatalf("expected SubmissionError, got %s", result)
	}
}

func TestRunWithoutInitiationTimesOut(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.NoiseResponse())
		tr.Push(testsupport.NoiseResponse())
	}}
	runner, _ := newRunner(t, remote, nil)

	start := time.Now()
	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonInitiationTimeout {
		t.Fatalf("expected InitiationTimeout, got %s", result)
	}
	if result.LastState() != string(session.StateAwaitingInitiation) {
		t.Fatalf("unexpected last state %q", result.LastState())
	}
	if time.Since(start) < 300*time.Millisecond {
		t.Fatal("timed out before the initiation window elapsed")
	}
	if result.Elapsed() <= 0 {
		t.Fatal("expected elapsed time in diagnostics")
	}
	if !remote.AllClosed() {
		t.Fatal("transport must be closed after timeout")
	}
}

func TestRunLateInitiationWithinWindowAdvances(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		time.Sleep(500 * time.Millisecond)
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
		tr.Push(testsupport.CompletionResponse("t-1", "7", "https://remote.test/u/7"))
	}}
	runner, rec := newRunner(t, remote, func(o *session.Options) {
		o.InitiationTimeout = 600 * time.Millisecond
	})

	result := runner.Run(context.Background(), recordingPath(t))
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %s", result)
	}
	sawCompletion := false
	for _, s := range rec.snapshot() {
		if s == session.StateAwaitingCompletion {
			sawCompletion = true
		}
	}
	if !sawCompletion {
		t.Fatal("expected transition to AwaitingCompletion")
	}
}

func TestRunCompletionWithoutReferenceKeepsWaiting(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
		tr.Push(testsupport.CompletionResponse("t-1", "7", ""))
	}}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if result.IsSuccess() {
		t.Fatal("empty reference must not count as success")
	}
	if result.Reason() != outcome.ReasonCompletionTimeout {
		t.Fatalf("expected CompletionTimeout, got %s", result)
	}
	if result.LastState() != string(session.StateAwaitingCompletion) {
		t.Fatalf("unexpected last state %q", result.LastState())
	}
}

func TestRunIgnoresCompletionForOtherTransfer(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
		tr.Push(testsupport.CompletionResponse("t-other", "1", "https://remote.test/u/wrong"))
		tr.Push(testsupport.CompletionResponse("t-1", "2", "https://remote.test/u/right"))
	}}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if !result.IsSuccess() || result.RemoteID() != "2" {
		t.Fatalf("expected correlated completion, got %s", result)
	}
}

func TestRunHoldsCompletionSeenBeforeInitiation(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.CompletionResponse("", "5", "https://remote.test/u/5"))
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
	}}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if !result.IsSuccess() || result.RemoteID() != "5" {
		t.Fatalf("expected held completion to succeed after initiation, got %s", result)
	}
}

func TestRunFirstAcceptedCompletionWins(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
		tr.Push(testsupport.CompletionResponse("t-1", "first", "https://remote.test/u/first"))
		tr.Push(testsupport.CompletionResponse("t-1", "second", "https://remote.test/u/second"))
	}}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if result.RemoteID() != "first" {
		t.Fatalf("expected first completion to win, got %s", result)
	}
}

func TestRunRejectsFileAboveRemoteCeiling(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.InitiationResponse("t-1", 10))
	}}
	runner, _ := newRunner(t, remote, nil)

	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonSubmissionError {
		t.Fatalf("expected SubmissionError, got %s", result)
	}
}

func TestRunBrokenStreamDuringCompletion(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
		time.Sleep(50 * time.Millisecond)
		_ = tr.Close()
	}}
	runner, _ := newRunner(t, remote, func(o *session.Options) { o.CompletionTimeout = 5 * time.Second })

	start := time.Now()
	result := runner.Run(context.Background(), recordingPath(t))
	if result.Reason() != outcome.ReasonCompletionTimeout {
		t.Fatalf("expected CompletionTimeout, got %s", result)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("broken stream should end the wait early")
	}
}

func TestRunCancelledContextIsAborted(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(testsupport.InitiationResponse("t-1", 1<<20))
	}}
	runner, _ := newRunner(t, remote, func(o *session.Options) { o.CompletionTimeout = time.Minute })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	result := runner.Run(ctx, recordingPath(t))
	if result.Reason() != outcome.ReasonAborted {
		t.Fatalf("expected Aborted, got %s", result)
	}
	if !remote.AllClosed() {
		t.Fatal("transport must be closed after abort")
	}
}

func TestRunUsesCustomClassifier(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: func(path string, tr *testsupport.FakeTransport) {
		tr.Push(ack.Response{Body: []byte("INIT t-9")})
		tr.Push(ack.Response{Body: []byte("DONE https://remote.test/u/9")})
	}}
	classifier := ack.ClassifierFunc(func(r ack.Response) ack.Signal {
		switch {
		case string(r.Body) == "INIT t-9":
			return ack.InitiationSignal(ack.Initiation{TransferID: "t-9", MaxSize: 1 << 20})
		case len(r.Body) > 5 && string(r.Body[:5]) == "DONE ":
			return ack.CompletionSignal(ack.Completion{RemoteID: "9", RemoteURL: string(r.Body[5:])})
		}
		return ack.Signal{}
	})
	runner, _ := newRunner(t, remote, func(o *session.Options) { o.Classifier = classifier })

	result := runner.Run(context.Background(), recordingPath(t))
	if !result.IsSuccess() || result.RemoteURL() != "https://remote.test/u/9" {
		t.Fatalf("expected success via custom classifier, got %s", result)
	}
}

func TestRunOpensFreshTransportPerFile(t *testing.T) {
	remote := &testsupport.FakeRemote{Script: testsupport.CompleteImmediately}
	runner, _ := newRunner(t, remote, nil)
	dir := t.TempDir()

	for _, name := range []string{"a.mp3", "b.mp3"} {
		path := testsupport.Recording(t, dir, name)
		if result := runner.Run(context.Background(), path); !result.IsSuccess() {
			t.Fatalf("%s: expected success, got %s", name, result)
		}
	}
	transports := remote.Transports()
	if len(transports) != 2 {
		t.Fatalf("expected 2 transports, got %d", len(transports))
	}
	if transports[0] == transports[1] {
		t.Fatal("transport reused across files")
	}
	if got := transports[1].Submitted(); len(got) != 1 || filepath.Base(got[0]) != "b.mp3" {
		t.Fatalf("unexpected submissions %v", got)
	}
}

func TestNewRunnerRequiresFactory(t *testing.T) {
	if _, err := session.NewRunner(session.Options{InitiationTimeout: time.Second, CompletionTimeout: time.Second}); err == nil {
		t.Fatal("expected error without transport factory")
	}
}
