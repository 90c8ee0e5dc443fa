// Copyright 2024 The hdds Authors.

package hdds

import (
	"errors"
	"fmt"
)

// Sentinel errors of the public API (spec.md §7).
var (
	// ErrResourceExhausted reports a Reliable+KeepAll writer whose cache
	// cannot take another sample. DataWriter.Write does not return it:
	// Write never blocks on a full cache, and a cache bounded by
	// resource_limits.max_samples drops its oldest samples instead.
	ErrResourceExhausted = errors.New("hdds: resource exhausted")
	// ErrTimeout is returned by any API that took an explicit timeout and
	// did not complete within it.
	ErrTimeout = errors.New("hdds: timeout")
	// ErrShutdown is returned by any operation attempted after the owning
	// Participant has shut down.
	ErrShutdown = errors.New("hdds: participant shut down")
	// ErrSecurityDenied names a match vetoed by the access-control plugin.
	// No function of this package returns it: a vetoed pair is logged by
	// the discovery matcher and left unmatched.
	ErrSecurityDenied = errors.New("hdds: security denied")
)

// ParseError wraps a malformed RTPS/CDR decode failure. It is constructed
// and logged internally only; per spec.md §7's propagation policy it is
// never returned from a public API. It is an exported type so internal
// packages can assert on it in tests.
type ParseError struct {
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hdds: parse error (%s): %v", e.Context, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError wraps a socket I/O failure. New returns one when it
// cannot bind a transport; I/O failures after construction are logged,
// not returned.
type TransportError struct {
	Locator string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hdds: transport error (%s): %v", e.Locator, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
