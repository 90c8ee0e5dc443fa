// Copyright 2024 The hdds Authors.

package reliability

import (
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/pkg/guid"
)

// pendingSample is one not-yet-delivered slot in a WriterProxy's receive
// window: a real sample, or a slot with gap set, meaning it was declared
// irrelevant by a GAP or by the writer's heartbeat_first advancing past it.
type pendingSample struct {
	InlineQoS []byte
	Payload   []byte
	KeyOnly   bool
	gap       bool
}

// WriterProxy is a reader's view of one matched remote writer (spec.md
// §4.6.2). It is mutated only by the owning Reader's worker goroutine.
type WriterProxy struct {
	WriterGUID      guid.Guid
	UnicastLocators []transport.Locator
	Reliable        bool

	HeartbeatFirst     guid.SequenceNumber
	HeartbeatLast      guid.SequenceNumber
	AckedUpTo          guid.SequenceNumber
	LastHeartbeatCount uint32
	PendingAckNack     bool

	window        map[guid.SequenceNumber]*pendingSample
	ackNackSN     uint32
	nackFragCount uint32

	// OnDeliver is called, in sequence-number order, for every sample that
	// becomes the next contiguous element of the delivery cursor.
	OnDeliver func(seq guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool)
	// OnSampleLost is called for a sequence number the writer declared
	// irrelevant via heartbeat_first advancing past it without ever being
	// received (spec.md §4.6.2).
	OnSampleLost func(seq guid.SequenceNumber)
}

// NewWriterProxy creates a WriterProxy for a newly matched remote writer.
// Best-effort readers still use this type but never generate ACKNACK, per
// spec.md's "best-effort skips all this".
func NewWriterProxy(writerGUID guid.Guid, reliable bool, locators []transport.Locator) *WriterProxy {
	return &WriterProxy{
		WriterGUID:      writerGUID,
		UnicastLocators: locators,
		Reliable:        reliable,
		window:          make(map[guid.SequenceNumber]*pendingSample),
	}
}

// HandleData applies spec.md §4.6.2's DATA receipt rule.
func (wp *WriterProxy) HandleData(seq guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool) {
	if seq <= wp.AckedUpTo {
		return // duplicate
	}
	if seq > wp.HeartbeatLast {
		wp.HeartbeatLast = seq
	}
	wp.window[seq] = &pendingSample{InlineQoS: inlineQoS, Payload: payload, KeyOnly: keyOnly}
	wp.advanceDelivery()
}

// Deliver implements dispatch.ReaderSink for whole, already-complete DATA
// submessages. DATA_FRAG arrives separately through the owning Reader's
// handleDataFrag, which reassembles it (spec.md §4.4 rule 5, §4.6.3) before
// calling HandleData directly. writerID is redundant here since a
// WriterProxy is bound to exactly one writer.
func (wp *WriterProxy) Deliver(writerID guid.EntityId, sn guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool) {
	wp.HandleData(sn, inlineQoS, payload, keyOnly)
}

// HandleHeartbeat applies spec.md §4.6.2's HEARTBEAT receipt rule,
// reporting whether an ACKNACK is due and, if so, the bitmap to send. The
// caller is responsible for the heartbeat_response_delay batching timer;
// a due ACKNACK here means "owed", not "send immediately" (spec.md's
// final=true case still owes a reply if something is missing, just not
// synchronously).
func (wp *WriterProxy) HandleHeartbeat(count uint32, first, last guid.SequenceNumber) (ackNackDue bool, missing []guid.SequenceNumber) {
	if count <= wp.LastHeartbeatCount {
		return false, nil
	}
	wp.LastHeartbeatCount = count

	for seq := wp.HeartbeatFirst; seq < first; seq++ {
		wp.markIrrelevant(seq)
	}
	wp.HeartbeatFirst = first
	if last > wp.HeartbeatLast {
		wp.HeartbeatLast = last
	}
	wp.advanceDelivery()

	if !wp.Reliable {
		return false, nil
	}

	missing = wp.missingInRange(wp.HeartbeatFirst, wp.HeartbeatLast)
	if len(missing) == 0 {
		return false, nil
	}
	wp.PendingAckNack = true
	return true, missing
}

// HandleGap applies spec.md §4.6.2's GAP receipt rule: the range is
// permanently unavailable, so it is marked delivered (irrelevant) without
// ever surfacing SAMPLE_LOST. GapStart..GapList.Base-1 is an implicit
// contiguous run of irrelevant sequence numbers; GapList's own bitmap
// marks further, possibly non-contiguous, ones from its Base onward
// (internal/rtps.Gap's wire layout).
func (wp *WriterProxy) HandleGap(g *rtps.Gap) {
	for seq := g.GapStart; seq < g.GapList.Base; seq++ {
		wp.markGap(seq)
	}
	for _, seq := range g.GapList.Members() {
		wp.markGap(seq)
	}
	wp.advanceDelivery()
}

func (wp *WriterProxy) markGap(seq guid.SequenceNumber) {
	if seq <= wp.AckedUpTo {
		return
	}
	if _, exists := wp.window[seq]; !exists {
		wp.window[seq] = &pendingSample{gap: true}
	}
}

func (wp *WriterProxy) markIrrelevant(seq guid.SequenceNumber) {
	if seq <= wp.AckedUpTo {
		return
	}
	if _, received := wp.window[seq]; !received {
		if wp.OnSampleLost != nil {
			wp.OnSampleLost(seq)
		}
		wp.window[seq] = &pendingSample{gap: true}
	}
}

// advanceDelivery delivers the smallest contiguous prefix of window in
// order, matching PRESENTATION=TOPIC's default ordering guarantee.
func (wp *WriterProxy) advanceDelivery() {
	for {
		next := wp.AckedUpTo + 1
		s, ok := wp.window[next]
		if !ok {
			return
		}
		delete(wp.window, next)
		wp.AckedUpTo = next
		if !s.gap && wp.OnDeliver != nil {
			wp.OnDeliver(next, s.InlineQoS, s.Payload, s.KeyOnly)
		}
	}
}

// missingInRange returns every sequence number in [first, last] that has
// not yet been received, ascending.
func (wp *WriterProxy) missingInRange(first, last guid.SequenceNumber) []guid.SequenceNumber {
	var out []guid.SequenceNumber
	for seq := first; seq <= last && seq <= wp.AckedUpTo+maxBitmapRange; seq++ {
		if seq <= wp.AckedUpTo {
			continue
		}
		if _, ok := wp.window[seq]; ok {
			continue
		}
		out = append(out, seq)
	}
	return out
}

// maxBitmapRange bounds how far missingInRange scans, matching the
// practical 256-entry bitmap limit in internal/rtps's SequenceNumberSet.
const maxBitmapRange = 256

// ComposeAckNack builds the ACKNACK submessage for the given missing set,
// incrementing the local count (spec.md §4.6.2).
func (wp *WriterProxy) ComposeAckNack(readerID, writerID guid.EntityId, missing []guid.SequenceNumber, final bool) *rtps.AckNack {
	wp.ackNackSN++
	wp.PendingAckNack = false
	base := wp.AckedUpTo + 1
	return &rtps.AckNack{
		ReaderID: readerID,
		WriterID: writerID,
		Bitmap:   rtps.NewSequenceNumberSet(base, missing),
		Count:    wp.ackNackSN,
		Final:    final,
	}
}
