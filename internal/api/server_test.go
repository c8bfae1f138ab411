package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hopper/internal/api"
	"hopper/internal/history"
	"hopper/internal/ingest"
	"hopper/internal/queue"
)

type pipelineStub struct{ status ingest.Status }

func (p pipelineStub) Status() ingest.Status { return p.status }

type journalStub struct {
	entries   []history.Entry
	counts    history.Counts
	err       error
	lastLimit int
}

func (j *journalStub) List(_ context.Context, limit int) ([]history.Entry, error) {
	j.lastLimit = limit
	if j.err != nil {
		return nil, j.err
	}
	return j.entries, nil
}

func (j *journalStub) Counts(context.Context) (history.Counts, error) {
	return j.counts, j.err
}

func setupRouter(pipeline api.Pipeline, journal api.Journal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return api.NewRouter(api.Options{
		Pipeline: pipeline,
		Journal:  journal,
		Runtime: api.RuntimeInfo{
			PID:         42,
			StartedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			WatchDir:    "/srv/inbox",
			UploadedDir: "/srv/inbox/uploaded",
		},
	})
}

func serve(t *testing.T, router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusReportsPipelineAndTotals(t *testing.T) {
	enqueued := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	pipeline := pipelineStub{status: ingest.Status{
		Queue: queue.Status{
			Running:   true,
			Depth:     1,
			Current:   &queue.Entry{Path: "/srv/inbox/a.mp3", EnqueuedAt: enqueued},
			StartedAt: enqueued.Add(time.Second),
			Pending:   []queue.Entry{{Path: "/srv/inbox/b.mp3", EnqueuedAt: enqueued}},
		},
		Stage:     "AwaitingCompletion",
		Processed: 3,
		Succeeded: 2,
		Failed:    1,
	}}
	journal := &journalStub{counts: history.Counts{Success: 10, Failure: 4}}
	w := serve(t, setupRouter(pipeline, journal), http.MethodGet, "/api/status")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Running || resp.PID != 42 || resp.WatchDir != "/srv/inbox" {
		t.Fatalf("unexpected runtime fields %+v", resp)
	}
	p := resp.Pipeline
	if p.Stage != "AwaitingCompletion" || p.QueueDepth != 1 || p.Processed != 3 || p.Failed != 1 {
		t.Fatalf("unexpected pipeline %+v", p)
	}
	if p.Current == nil || p.Current.Path != "/srv/inbox/a.mp3" || p.Current.StartedAt != "2026-03-01T09:05:01.000Z" {
		t.Fatalf("unexpected current %+v", p.Current)
	}
	if len(p.Pending) != 1 || p.Pending[0].Path != "/srv/inbox/b.mp3" {
		t.Fatalf("unexpected pending %+v", p.Pending)
	}
	if resp.Totals.Success != 10 || resp.Totals.Failure != 4 {
		t.Fatalf("unexpected totals %+v", resp.Totals)
	}
}

func TestStatusToleratesJournalError(t *testing.T) {
	journal := &journalStub{err: errors.New("database is locked")}
	w := serve(t, setupRouter(pipelineStub{}, journal), http.MethodGet, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHistoryLimit(t *testing.T) {
	finished := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	journal := &journalStub{entries: []history.Entry{{
		ID:         "abc",
		Path:       "/srv/inbox/a.mp3",
		Status:     history.StatusFailure,
		Reason:     "InitiationTimeout",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}}}
	router := setupRouter(pipelineStub{}, journal)

	w := serve(t, router, http.MethodGet, "/api/history?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if journal.lastLimit != 5 {
		t.Fatalf("expected limit 5, got %d", journal.lastLimit)
	}
	var resp api.HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Reason != "InitiationTimeout" || resp.Entries[0].FinishedAt != "2026-03-02T10:00:00.000Z" {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}

	serve(t, router, http.MethodGet, "/api/history")
	if journal.lastLimit != history.DefaultListLimit {
		t.Fatalf("expected default limit, got %d", journal.lastLimit)
	}
	serve(t, router, http.MethodGet, "/api/history?limit=100000")
	if journal.lastLimit != api.MaxHistoryLimit {
		t.Fatalf("expected capped limit, got %d", journal.lastLimit)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	w := serve(t, setupRouter(pipelineStub{}, &journalStub{}), http.MethodGet, "/api/history?limit=zero")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router := setupRouter(pipelineStub{}, &journalStub{})
	if w := serve(t, router, http.MethodGet, "/api/nope"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := serve(t, router, http.MethodPost, "/api/status"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestClientRoundTrip(t *testing.T) {
	journal := &journalStub{
		entries: []history.Entry{{ID: "1", Path: "/srv/inbox/a.mp3", Status: history.StatusSuccess}},
		counts:  history.Counts{Success: 1},
	}
	srv := httptest.NewServer(setupRouter(pipelineStub{}, journal))
	defer srv.Close()

	client := api.NewClient(srv.URL)
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Totals.Success != 1 {
		t.Fatalf("unexpected totals %+v", status.Totals)
	}
	entries, err := client.History(context.Background(), 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || journal.lastLimit != 3 {
		t.Fatalf("unexpected history %+v (limit %d)", entries, journal.lastLimit)
	}

	bad := api.NewClient(srv.URL)
	if _, err := bad.History(context.Background(), -1); err != nil {
		t.Fatalf("History without limit: %v", err)
	}
}
