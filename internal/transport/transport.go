package transport

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Send/Receive after Close.
var ErrClosed = errors.New("transport: closed")

// Received describes one inbound datagram (spec.md §4.3: "Receive returns
// buffer, source locator, and (when applicable) timestamp and RSSI").
type Received struct {
	Data      []byte
	Source    Locator
	Timestamp time.Time
	RSSI      *int // nil when the underlying medium has no signal strength
}

// Transport delivers opaque byte buffers to and from a Locator. Send is
// best-effort; loss recovery is the reliability engine's responsibility,
// not the transport's (spec.md §4.3).
type Transport interface {
	// Send writes buf to dst. Best-effort: a dropped packet is not
	// reported as an error unless the local send itself failed.
	Send(dst Locator, buf []byte) error

	// Receive blocks until a datagram arrives, ctx is done, or the
	// transport is closed.
	Receive(ctx context.Context) (Received, error)

	// LocalLocator is the address this transport listens on.
	LocalLocator() Locator

	Close() error
}
