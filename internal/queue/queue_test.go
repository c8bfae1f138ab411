package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hopper/internal/queue"
)

type recorder struct {
	mu     sync.Mutex
	paths  []string
	active atomic.Int32
	peak   atomic.Int32
	done   chan string
}

func newRecorder() *recorder {
	return &recorder{done: make(chan string, 256)}
}

func (r *recorder) handle(ctx context.Context, entry queue.Entry) {
	n := r.active.Add(1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	r.mu.Lock()
	r.paths = append(r.paths, entry.Path)
	r.mu.Unlock()
	r.active.Add(-1)
	r.done <- entry.Path
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, ch <-chan string, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-timeout:
			t.Fatalf("timed out after %d of %d files", i, n)
		}
	}
}

func startQueue(t *testing.T, q *queue.Queue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := q.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestQueueProcessesConcurrentEnqueuesInOrderOneAtATime(t *testing.T) {
	rec := newRecorder()
	q := queue.New(rec.handle, nil)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(fmt.Sprintf("/inbox/%02d.mp3", i))
		}(i)
	}
	wg.Wait()

	status := q.Status()
	if status.Depth != n {
		t.Fatalf("expected depth %d, got %d", n, status.Depth)
	}
	want := make([]string, 0, n)
	for _, e := range status.Pending {
		want = append(want, e.Path)
	}

	startQueue(t, q)
	waitFor(t, rec.done, n)

	got := rec.order()
	if len(got) != n {
		t.Fatalf("expected %d handled, got %d", n, len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
	if peak := rec.peak.Load(); peak != 1 {
		t.Fatalf("expected at most one file in flight, saw %d", peak)
	}
}

func TestQueueDeduplicatesPendingAndInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 4)
	handled := make(chan string, 4)
	q := queue.New(func(ctx context.Context, e queue.Entry) {
		started <- e.Path
		<-release
		handled <- e.Path
	}, nil)

	if !q.Enqueue("/inbox/a.mp3") {
		t.Fatal("first enqueue should be accepted")
	}
	if q.Enqueue("/inbox/a.mp3") {
		t.Fatal("duplicate pending path should be rejected")
	}
	startQueue(t, q)
	<-started
	if q.Enqueue("/inbox/a.mp3") {
		t.Fatal("duplicate in-flight path should be rejected")
	}
	close(release)
	waitFor(t, handled, 1)

	deadline := time.Now().Add(time.Second)
	for !q.Enqueue("/inbox/a.mp3") {
		if time.Now().After(deadline) {
			t.Fatal("path should be accepted again once handled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, handled, 1)
}

func TestQueueSecondFileWaitsForFirstToFinish(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	q := queue.New(func(ctx context.Context, e queue.Entry) {
		started <- e.Path
		if e.Path == "/inbox/a.mp3" {
			<-release
		}
	}, nil)

	q.Enqueue("/inbox/a.mp3")
	q.Enqueue("/inbox/b.mp3")
	startQueue(t, q)

	if first := <-started; first != "/inbox/a.mp3" {
		t.Fatalf("expected a.mp3 first, got %s", first)
	}
	select {
	case p := <-started:
		t.Fatalf("%s dequeued while a.mp3 still in flight", p)
	case <-time.After(100 * time.Millisecond):
	}
	if cur, ok := q.Current(); !ok || cur.Path != "/inbox/a.mp3" {
		t.Fatalf("expected a.mp3 in flight, got %+v", cur)
	}
	if q.Depth() != 1 {
		t.Fatalf("expected b.mp3 pending, depth %d", q.Depth())
	}

	close(release)
	select {
	case p := <-started:
		if p != "/inbox/b.mp3" {
			t.Fatalf("expected b.mp3, got %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("b.mp3 never started")
	}
}

func TestQueueSurvivesHandlerPanic(t *testing.T) {
	handled := make(chan string, 2)
	q := queue.New(func(ctx context.Context, e queue.Entry) {
		if e.Path == "/inbox/bad.mp3" {
			panic("boom")
		}
		handled <- e.Path
	}, nil)
	q.Enqueue("/inbox/bad.mp3")
	q.Enqueue("/inbox/good.mp3")
	startQueue(t, q)

	select {
	case p := <-handled:
		if p != "/inbox/good.mp3" {
			t.Fatalf("unexpected path %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after panic")
	}
}

func TestQueueRunRejectsSecondWorker(t *testing.T) {
	q := queue.New(func(context.Context, queue.Entry) {}, nil)
	startQueue(t, q)

	deadline := time.Now().Add(time.Second)
	for !q.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("worker never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := q.Run(context.Background()); !errors.Is(err, queue.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestQueueCancelStopsWorkerAndKeepsPending(t *testing.T) {
	started := make(chan struct{}, 1)
	q := queue.New(func(ctx context.Context, e queue.Entry) {
		started <- struct{}{}
		<-ctx.Done()
	}, nil)
	q.Enqueue("/inbox/a.mp3")
	q.Enqueue("/inbox/b.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if q.Depth() != 1 {
		t.Fatalf("expected b.mp3 left pending, depth %d", q.Depth())
	}
	if _, ok := q.Current(); ok {
		t.Fatal("no file should be in flight after shutdown")
	}
}
