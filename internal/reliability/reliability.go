// Copyright 2024 The hdds Authors.

// Package reliability implements the RTPS stateful reliability protocol on
// both the writer and reader side (spec.md §4.6): per-remote-reader
// ReaderProxy state inside a writer, per-remote-writer WriterProxy state
// inside a reader, the jittered heartbeat scheduler, NACK-driven
// retransmission/GAP emission, and fragment reassembly.
//
// Every ReaderProxy/WriterProxy is owned and mutated only by its parent
// Writer/Reader's single worker goroutine (spec.md §5); other goroutines
// reach it only through the Writer/Reader's exported methods, which take
// the owning mutex internally. This mirrors the teacher's internal/ron
// server, where per-client state is touched only while holding
// Server.clientLock.
package reliability

import (
	"time"

	"github.com/hdds-io/hdds/pkg/guid"
)

// Defaults from spec.md §4.6.
const (
	DefaultHeartbeatPeriod        = 200 * time.Millisecond
	DefaultHeartbeatResponseDelay = 10 * time.Millisecond
	// DefaultFragmentSize is the send-side chunk size a DataWriter splits a
	// sample into before it exceeds one DATA submessage; consumed by the
	// entity-layer write path, not by this package.
	DefaultFragmentSize      = 1024
	DefaultLivelinessTimeout = 10 * time.Second
)

// ProxyState is the writer-side per-reader state diagram of spec.md
// §4.6.4: Initial -> Announce -> Active <-> WaitingForAcknowledgements ->
// Congested -> Unresponsive -> Terminated.
type ProxyState int

const (
	StateInitial ProxyState = iota
	StateAnnounce
	StateActive
	StateWaitingForAcknowledgements
	StateCongested
	StateUnresponsive
	StateTerminated
)

func (s ProxyState) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateAnnounce:
		return "Announce"
	case StateActive:
		return "Active"
	case StateWaitingForAcknowledgements:
		return "WaitingForAcknowledgements"
	case StateCongested:
		return "Congested"
	case StateUnresponsive:
		return "Unresponsive"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// RetransmitRequest is one coalesced retransmission decision produced by
// HandleAckNack: either resend a sample still in the history cache, or
// emit a GAP because it has already been evicted.
type RetransmitRequest struct {
	Resend []guid.SequenceNumber // present in history, send DATA/DATA_FRAG
	Gap    []guid.SequenceNumber // already evicted, send GAP instead
}
