package browser

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"

	"hopper/internal/ack"
	"hopper/internal/logging"
	"hopper/internal/session"
)

type bodyFetcher func(ctx context.Context, id network.RequestID) ([]byte, error)

type pendingResponse struct {
	id   network.RequestID
	resp ack.Response
}

// capture turns DevTools network events into ordered ack.Responses. Event
// callbacks must not block, so finished requests queue in an unbounded backlog
// and bodies are fetched on a separate goroutine in the order requests finish
// loading.
type capture struct {
	filter string
	fetch  bodyFetcher
	logger *slog.Logger

	mu       sync.Mutex
	started  map[network.RequestID]ack.Response
	finished []pendingResponse
	wake     chan struct{}

	responses chan ack.Response
	done      chan struct{}
	closeOnce sync.Once
}

func newCapture(filter string, fetch bodyFetcher, logger *slog.Logger) *capture {
	return &capture{
		filter:    filter,
		fetch:     fetch,
		logger:    logger,
		started:   make(map[network.RequestID]ack.Response),
		wake:      make(chan struct{}, 1),
		responses: make(chan ack.Response, 256),
		done:      make(chan struct{}),
	}
}

func (c *capture) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil || !c.wants(e.Type, e.Response.URL) {
			return
		}
		c.mu.Lock()
		c.started[e.RequestID] = ack.Response{
			URL:      e.Response.URL,
			Status:   int(e.Response.Status),
			MimeType: e.Response.MimeType,
		}
		c.mu.Unlock()
	case *network.EventLoadingFinished:
		c.mu.Lock()
		resp, ok := c.started[e.RequestID]
		delete(c.started, e.RequestID)
		if ok {
			c.finished = append(c.finished, pendingResponse{id: e.RequestID, resp: resp})
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		select {
		case c.wake <- struct{}{}:
		default:
		}
	case *network.EventLoadingFailed:
		c.mu.Lock()
		delete(c.started, e.RequestID)
		c.mu.Unlock()
	}
}

func (c *capture) wants(kind network.ResourceType, url string) bool {
	if kind != network.ResourceTypeXHR && kind != network.ResourceTypeFetch {
		return false
	}
	return c.filter == "" || strings.Contains(url, c.filter)
}

// run fetches bodies until ctx ends or the capture is closed.
func (c *capture) run(ctx context.Context) {
	for {
		p, ok := c.pop()
		if !ok {
			select {
			case <-ctx.Done():
				c.close()
				return
			case <-c.done:
				return
			case <-c.wake:
			}
			continue
		}
		body, err := c.fetch(ctx, p.id)
		if err != nil {
			if ctx.Err() != nil {
				c.close()
				return
			}
			c.logger.Debug("response body unavailable",
				logging.String("url", p.resp.URL),
				logging.Error(err),
			)
			continue
		}
		p.resp.Body = body
		select {
		case c.responses <- p.resp:
		case <-c.done:
			return
		case <-ctx.Done():
			c.close()
			return
		}
	}
}

func (c *capture) pop() (pendingResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.finished) == 0 {
		return pendingResponse{}, false
	}
	p := c.finished[0]
	c.finished[0] = pendingResponse{}
	c.finished = c.finished[1:]
	return p, true
}

func (c *capture) next(ctx context.Context) (ack.Response, error) {
	select {
	case resp := <-c.responses:
		return resp, nil
	case <-c.done:
		return ack.Response{}, session.ErrTransportClosed
	case <-ctx.Done():
		return ack.Response{}, ctx.Err()
	}
}

func (c *capture) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
