package session

import (
	"context"
	"errors"

	"hopper/internal/ack"
)

// ErrTransportClosed is returned by Transport.Next once the transport has
// been closed or its underlying connection is gone.
var ErrTransportClosed = errors.New("transport closed")

// ErrRejected is returned by Transport.Authenticate when the remote refuses
// the credentials.
var ErrRejected = errors.New("credentials rejected")

// Credentials identify the operator's account on the remote service.
type Credentials struct {
	Username string
	Password string
}

// Present reports whether both fields are populated.
func (c Credentials) Present() bool {
	return c.Username != "" && c.Password != ""
}

// Transport is a live connection to the remote service owned by exactly one
// session.
//
// Next returns observed responses in arrival order, including any that
// arrived before the call, and blocks until one is available or ctx ends.
type Transport interface {
	Authenticate(ctx context.Context, creds Credentials) error
	Submit(ctx context.Context, path string) error
	Next(ctx context.Context) (ack.Response, error)
	Close() error
}

// TransportFactory opens a new Transport for one session.
type TransportFactory func(ctx context.Context) (Transport, error)
