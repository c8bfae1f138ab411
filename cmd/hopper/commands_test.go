package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hopper/internal/api"
	"hopper/internal/daemon"
	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/logging"
	"hopper/internal/notifications"
	"hopper/internal/testsupport"
)

func TestUploadCommandRelocatesAndJournals(t *testing.T) {
	env := setupCLITestEnv(t)
	remote := &testsupport.FakeRemote{Script: testsupport.CompleteImmediately}
	env.transports = remote.Factory()
	path := testsupport.Recording(t, env.cfg.Paths.WatchDir, "episode.mp3")

	out, _, err := env.run(t, "upload", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "[OK] episode.mp3")
	requireContains(t, out, "https://remote.test/u/")

	testsupport.AssertMissing(t, path)
	testsupport.AssertExists(t, filepath.Join(env.cfg.UploadedDir(), "episode.mp3"))
	if !remote.AllClosed() {
		t.Fatal("expected transport to be closed")
	}

	out, _, err = env.run(t, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var resp api.HistoryResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Status != string(history.StatusSuccess) {
		t.Fatalf("unexpected history: %+v", resp.Entries)
	}
}

func TestUploadCommandReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	remote := &testsupport.FakeRemote{SubmitErr: errors.New("file input missing")}
	env.transports = remote.Factory()
	path := testsupport.Recording(t, env.cfg.Paths.WatchDir, "episode.mp3")

	out, _, err := env.run(t, "upload", "--json", path)
	if err == nil || !strings.Contains(err.Error(), "SubmissionError") {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	var entry api.HistoryEntry
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("decode outcome: %v\n%s", err, out)
	}
	if entry.Status != string(history.StatusFailure) || entry.Reason != "SubmissionError" {
		t.Fatalf("unexpected outcome: %+v", entry)
	}
	testsupport.AssertExists(t, path)
}

func TestUploadCommandRejectsUnknownExtension(t *testing.T) {
	env := setupCLITestEnv(t)
	remote := &testsupport.FakeRemote{Script: testsupport.CompleteImmediately}
	env.transports = remote.Factory()
	path := testsupport.Recording(t, env.cfg.Paths.WatchDir, "notes.txt")

	if _, _, err := env.run(t, "upload", path); err == nil {
		t.Fatal("expected extension error")
	}
	if len(remote.Transports()) != 0 {
		t.Fatal("expected no transport to be opened")
	}
}

func TestUploadCommandRefusedWhileWatcherHoldsLock(t *testing.T) {
	env := setupCLITestEnv(t)
	remote := &testsupport.FakeRemote{Script: testsupport.CompleteImmediately}
	env.transports = remote.Factory()
	path := testsupport.Recording(t, env.cfg.Paths.WatchDir, "episode.mp3")

	held, err := daemon.AcquireLock(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer held.Release()

	_, _, err = env.run(t, "upload", path)
	if !errors.Is(err, daemon.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if n := len(remote.Transports()); n != 0 {
		t.Fatalf("expected no session, %d transports opened", n)
	}
	testsupport.AssertExists(t, path)
	testsupport.AssertMissing(t, filepath.Join(env.cfg.UploadedDir(), "episode.mp3"))

	if err := held.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, _, err := env.run(t, "upload", path); err != nil {
		t.Fatalf("upload after release: %v", err)
	}
	testsupport.AssertExists(t, filepath.Join(env.cfg.UploadedDir(), "episode.mp3"))
}

func TestHistoryCommandTableAndPrune(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No uploads recorded")

	store := testsupport.MustOpenHistory(t, env.cfg)
	old := time.Now().Add(-72 * time.Hour)
	if _, err := store.Record(context.Background(), history.Entry{
		Path:       filepath.Join(env.cfg.Paths.WatchDir, "old.mp3"),
		Status:     history.StatusFailure,
		Reason:     "CompletionTimeout",
		StartedAt:  old,
		FinishedAt: old,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := store.Record(context.Background(), history.Entry{
		Path:       filepath.Join(env.cfg.Paths.WatchDir, "new.mp3"),
		Status:     history.StatusSuccess,
		RemoteURL:  "https://remote.test/u/new",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	out, _, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "old.mp3")
	requireContains(t, out, "CompletionTimeout")
	requireContains(t, out, "https://remote.test/u/new")
	requireContains(t, out, "Total: 1 succeeded, 1 failed")

	out, _, err = env.run(t, "history", "--prune-days", "1")
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Removed 1 entries")
}

func TestPreflightCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, err := env.run(t, "preflight")
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "Watch folder")
	requireContains(t, out, "Credentials")
}

func TestPreflightCommandFailsWithoutCredentials(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries(), testsupport.WithoutCredentials())

	out, _, err := env.run(t, "preflight")
	if err == nil {
		t.Fatalf("expected preflight failure, got:\n%s", out)
	}
	requireContains(t, out, "FAIL")
}

func TestTestNotifyCommand(t *testing.T) {
	titles := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		titles <- r.Header.Get("Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL+"/hopper"))
	out, _, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if len(titles) != 1 {
		t.Fatalf("expected one request, got %d", len(titles))
	}
	if title := <-titles; title != "Hopper - Test Notification" {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestTestNotifyWithoutTargets(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not configured")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")

	cfg := *env.cfg
	cfg.Paths.APIBind = "127.0.0.1:0"
	remote := &testsupport.FakeRemote{Script: testsupport.CompleteImmediately}
	store := testsupport.MustOpenHistory(t, &cfg)
	ctrl, err := ingest.NewFromConfig(&cfg, ingest.Dependencies{
		Transports: remote.Factory(),
		Reporter:   notifications.NewNotifier(notifications.NewNoop(), logging.NewNop()),
		Journal:    store,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	d, err := daemon.New(&cfg, ctrl, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	st := d.Status()
	for !st.Running || st.APIAddress == "" {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start")
		}
		time.Sleep(10 * time.Millisecond)
		st = d.Status()
	}

	env.cfg.Paths.APIBind = st.APIAddress
	env.writeConfig(t)

	out, _, err = env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[OK] running")
	requireContains(t, out, env.cfg.Paths.WatchDir)

	out, _, err = env.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !status.Running || status.WatchDir != env.cfg.Paths.WatchDir {
		t.Fatalf("unexpected status: %+v", status)
	}
}
