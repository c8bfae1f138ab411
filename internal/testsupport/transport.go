package testsupport

import (
	"context"
	"fmt"
	"sync"

	"hopper/internal/ack"
	"hopper/internal/session"
)

// FakeTransport is an in-memory session.Transport. Responses pushed onto it
// are returned by Next in order.
type FakeTransport struct {
	remote *FakeRemote

	responses chan ack.Response
	closeOnce sync.Once
	closed    chan struct{}

	mu        sync.Mutex
	submitted []string
	authed    bool
}

func newFakeTransport(remote *FakeRemote) *FakeTransport {
	return &FakeTransport{
		remote:    remote,
		responses: make(chan ack.Response, 64),
		closed:    make(chan struct{}),
	}
}

// Push queues a response for Next.
func (f *FakeTransport) Push(resp ack.Response) {
	select {
	case f.responses <- resp:
	case <-f.closed:
	}
}

// Authenticate implements session.Transport.
func (f *FakeTransport) Authenticate(ctx context.Context, creds session.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.remote != nil && f.remote.AuthErr != nil {
		return f.remote.AuthErr
	}
	f.mu.Lock()
	f.authed = true
	f.mu.Unlock()
	return nil
}

// Submit implements session.Transport and runs the remote's script.
func (f *FakeTransport) Submit(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.remote != nil && f.remote.SubmitErr != nil {
		return f.remote.SubmitErr
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, path)
	f.mu.Unlock()
	if f.remote != nil && f.remote.Script != nil {
		go f.remote.Script(path, f)
	}
	return nil
}

// Next implements session.Transport.
func (f *FakeTransport) Next(ctx context.Context) (ack.Response, error) {
	select {
	case resp := <-f.responses:
		return resp, nil
	case <-f.closed:
		return ack.Response{}, session.ErrTransportClosed
	case <-ctx.Done():
		return ack.Response{}, ctx.Err()
	}
}

// Close implements session.Transport.
func (f *FakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeTransport) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the transport is closed.
func (f *FakeTransport) Done() <-chan struct{} { return f.closed }

// Submitted lists the paths handed to Submit.
func (f *FakeTransport) Submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

// FakeRemote hands out FakeTransports and records them.
type FakeRemote struct {
	AuthErr   error
	SubmitErr error
	OpenErr   error
	// Script runs on its own goroutine after each successful Submit.
	Script func(path string, t *FakeTransport)

	mu         sync.Mutex
	transports []*FakeTransport
}

// Factory returns a session.TransportFactory backed by the remote.
func (r *FakeRemote) Factory() session.TransportFactory {
	return func(ctx context.Context) (session.Transport, error) {
		if r.OpenErr != nil {
			return nil, r.OpenErr
		}
		t := newFakeTransport(r)
		r.mu.Lock()
		r.transports = append(r.transports, t)
		r.mu.Unlock()
		return t, nil
	}
}

// Transports returns every transport opened so far.
func (r *FakeRemote) Transports() []*FakeTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FakeTransport(nil), r.transports...)
}

// AllClosed reports whether every opened transport has been closed.
func (r *FakeRemote) AllClosed() bool {
	for _, t := range r.Transports() {
		if !t.Closed() {
			return false
		}
	}
	return true
}

// InitiationResponse builds a payload recognized by ack.JSONClassifier as an
// initiation acknowledgment.
func InitiationResponse(transferID string, maxSize int64) ack.Response {
	body := fmt.Sprintf(`{"uid":%q,"max_file_size":%d}`, transferID, maxSize)
	return ack.Response{URL: "https://remote.test/uploads/policy", Status: 200, MimeType: "application/json", Body: []byte(body)}
}

// CompletionResponse builds a payload recognized by ack.JSONClassifier as a
// completion acknowledgment. An empty transferID omits the uid field.
func CompletionResponse(transferID, remoteID, remoteURL string) ack.Response {
	var body string
	if transferID == "" {
		body = fmt.Sprintf(`{"id":%q,"permalink_url":%q,"state":"processing"}`, remoteID, remoteURL)
	} else {
		body = fmt.Sprintf(`{"uid":%q,"id":%q,"permalink_url":%q,"state":"processing"}`, transferID, remoteID, remoteURL)
	}
	return ack.Response{URL: "https://remote.test/tracks", Status: 200, MimeType: "application/json", Body: []byte(body)}
}

// NoiseResponse builds an unrelated response.
func NoiseResponse() ack.Response {
	return ack.Response{URL: "https://remote.test/me", Status: 200, MimeType: "application/json", Body: []byte(`{"username":"tester"}`)}
}

// CompleteImmediately is a Script that acknowledges both stages at once.
func CompleteImmediately(path string, t *FakeTransport) {
	t.Push(InitiationResponse("transfer-"+path, 1<<30))
	t.Push(CompletionResponse("transfer-"+path, "id-"+path, "https://remote.test/u/"+path))
}
