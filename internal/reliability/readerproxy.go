// Copyright 2024 The hdds Authors.

package reliability

import (
	"time"

	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/pkg/guid"
)

// ReaderProxy is a writer's view of one matched remote reader (spec.md
// §4.6.1). It is mutated only by the owning Writer's worker goroutine.
type ReaderProxy struct {
	ReaderGUID       guid.Guid
	UnicastLocators  []transport.Locator
	AckedUpTo        guid.SequenceNumber
	Requested        map[guid.SequenceNumber]struct{}
	HighestNackCount uint32
	State            ProxyState
	LastActivity     time.Time

	resendCount  int
	resendWindow time.Time
}

// NewReaderProxy creates a ReaderProxy for a newly matched remote reader.
func NewReaderProxy(reader guid.Guid, locators []transport.Locator) *ReaderProxy {
	return &ReaderProxy{
		ReaderGUID:      reader,
		UnicastLocators: locators,
		Requested:       make(map[guid.SequenceNumber]struct{}),
		State:           StateInitial,
		LastActivity:    time.Now(),
	}
}

// handleAckNack applies spec.md §4.6.1's NACK handling rule. present
// reports, for each seq requested in the bitmap, whether it is still in
// the writer's history cache. Returns nil if the ACKNACK is stale (replay
// protection) and must be dropped.
func (rp *ReaderProxy) handleAckNack(count uint32, base guid.SequenceNumber, requested []guid.SequenceNumber, present func(guid.SequenceNumber) bool) *RetransmitRequest {
	if count <= rp.HighestNackCount {
		return nil
	}
	rp.HighestNackCount = count
	rp.LastActivity = time.Now()

	req := &RetransmitRequest{}
	for _, seq := range requested {
		if present(seq) {
			req.Resend = append(req.Resend, seq)
			rp.Requested[seq] = struct{}{}
		} else {
			req.Gap = append(req.Gap, seq)
			delete(rp.Requested, seq)
		}
	}

	if base > 0 {
		rp.AckedUpTo = base - 1
	}

	if len(rp.Requested) > 0 {
		rp.State = StateWaitingForAcknowledgements
	} else if rp.State == StateWaitingForAcknowledgements {
		rp.State = StateActive
	}

	return req
}

// allowResend applies the max_resend_rate rate limit (spec.md §4.6.1): at
// most maxPerSecond retransmissions to this reader within any one-second
// window.
func (rp *ReaderProxy) allowResend(maxPerSecond int, now time.Time) bool {
	if maxPerSecond <= 0 {
		return true
	}
	if now.Sub(rp.resendWindow) >= time.Second {
		rp.resendWindow = now
		rp.resendCount = 0
	}
	if rp.resendCount >= maxPerSecond {
		rp.State = StateCongested
		return false
	}
	rp.resendCount++
	return true
}

// checkUnresponsive transitions the proxy when it has not acked within
// livelinessTimeout of its last observed activity. The caller (the
// writer's heartbeat scheduler) is responsible for calling this on each
// tick and for unmatching the proxy separately on lease expiry.
func (rp *ReaderProxy) checkUnresponsive(livelinessTimeout time.Duration, now time.Time) {
	if rp.State == StateTerminated {
		return
	}
	if now.Sub(rp.LastActivity) > livelinessTimeout {
		rp.State = StateUnresponsive
	}
}

// noteHeartbeatSent records that the writer has announced itself to this
// reader at least once, advancing Initial/Announce into Active.
func (rp *ReaderProxy) noteHeartbeatSent() {
	if rp.State == StateInitial || rp.State == StateAnnounce {
		rp.State = StateActive
	}
}

// terminate marks the proxy Terminated on unmatch/lease expiry (spec.md
// §4.6.4); the Writer removes it from its proxies map separately.
func (rp *ReaderProxy) terminate() {
	rp.State = StateTerminated
}
