// Copyright 2024 The hdds Authors.

package reliability

import (
	"sync"

	"github.com/hdds-io/hdds/internal/dispatch"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
)

// Registry binds every local Writer and Reader engine to the dispatch
// Router, satisfying dispatch.ReliabilityLookup and dispatch.ReaderLookup.
// A local entity participates in reliability as exactly one side of any
// given (writer, reader) pair, so Lookup resolves to a small adapter that
// only implements the methods that side actually receives.
type Registry struct {
	mu      sync.RWMutex
	writers map[guid.EntityId]*Writer
	readers map[guid.EntityId]*Reader
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		writers: make(map[guid.EntityId]*Writer),
		readers: make(map[guid.EntityId]*Reader),
	}
}

// RegisterWriter makes w reachable by its entity id for incoming ACKNACK
// and NACK_FRAG. LookupByWriter consults registered readers only.
func (reg *Registry) RegisterWriter(w *Writer) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.writers[w.WriterGUID.EntityID] = w
}

// UnregisterWriter removes w and stops its heartbeat scheduler.
func (reg *Registry) UnregisterWriter(writer guid.EntityId) {
	reg.mu.Lock()
	w, ok := reg.writers[writer]
	delete(reg.writers, writer)
	reg.mu.Unlock()
	if ok {
		w.Close()
	}
}

// RegisterReader makes r reachable by its entity id for incoming HEARTBEAT
// and GAP, and for DATA routing via LookupByWriter.
func (reg *Registry) RegisterReader(r *Reader) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.readers[r.ReaderGUID.EntityID] = r
}

// UnregisterReader removes r and cancels its pending ACKNACK timers.
func (reg *Registry) UnregisterReader(reader guid.EntityId) {
	reg.mu.Lock()
	r, ok := reg.readers[reader]
	delete(reg.readers, reader)
	reg.mu.Unlock()
	if ok {
		r.Close()
	}
}

// Lookup implements dispatch.ReliabilityLookup. writer and reader are the
// entity ids carried by the submessage; exactly one of them identifies a
// local entity for any message that reached this participant (spec.md
// §4.4 rule 1 already dropped anything not addressed here).
func (reg *Registry) Lookup(writer, reader guid.EntityId) (dispatch.ReliabilityTarget, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if w, ok := reg.writers[writer]; ok {
		if rp, ok := w.proxyByEntityID(reader); ok {
			return &writerTarget{writer: w, proxy: rp}, true
		}
	}
	if r, ok := reg.readers[reader]; ok {
		if wp, ok := r.proxyByEntityID(writer); ok {
			return &readerTarget{reader: r, proxy: wp}, true
		}
	}
	return nil, false
}

// LookupByWriter implements dispatch.ReaderLookup: every local reader
// matched to the given remote writer receives the sample. Each sink is
// wrapped with its owning Reader so DATA_FRAG reassembly (dispatch.FragSink)
// can drive NACK_FRAG through that Reader's Transmit.
func (reg *Registry) LookupByWriter(prefix guid.GuidPrefix, writer guid.EntityId) ([]dispatch.ReaderSink, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	writerGuid := guid.Guid{Prefix: prefix, EntityID: writer}
	var sinks []dispatch.ReaderSink
	for _, r := range reg.readers {
		if wp, ok := r.Proxy(writerGuid); ok {
			sinks = append(sinks, &readerFragSink{reader: r, proxy: wp})
		}
	}
	return sinks, len(sinks) > 0
}

// readerFragSink adapts a Reader+WriterProxy pair to both dispatch.ReaderSink
// (whole, already-reassembled DATA) and dispatch.FragSink (DATA_FRAG), since
// fragment reassembly needs the owning Reader's Transmit to drive NACK_FRAG.
type readerFragSink struct {
	reader *Reader
	proxy  *WriterProxy
}

func (s *readerFragSink) Deliver(writerID guid.EntityId, sn guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool) {
	s.proxy.Deliver(writerID, sn, inlineQoS, payload, keyOnly)
}

func (s *readerFragSink) DeliverFrag(df *rtps.DataFrag) {
	s.reader.handleDataFrag(s.proxy, df)
}

// writerTarget adapts a Writer+ReaderProxy pair to dispatch.ReliabilityTarget
// for the submessages a writer actually receives: ACKNACK and NACK_FRAG.
type writerTarget struct {
	writer *Writer
	proxy  *ReaderProxy
}

func (t *writerTarget) HandleHeartbeat(*rtps.Heartbeat)         {}
func (t *writerTarget) HandleGap(*rtps.Gap)                     {}
func (t *writerTarget) HandleHeartbeatFrag(*rtps.HeartbeatFrag) {}

func (t *writerTarget) HandleAckNack(an *rtps.AckNack) {
	t.writer.HandleAckNack(t.proxy.ReaderGUID.Prefix, an)
}

// HandleNackFrag resends just the requested fragments of one sample, or
// GAPs it if already evicted from history (spec.md §4.6.3).
func (t *writerTarget) HandleNackFrag(nf *rtps.NackFrag) {
	t.writer.HandleNackFrag(t.proxy.ReaderGUID.Prefix, nf)
}

// readerTarget adapts a Reader+WriterProxy pair to dispatch.ReliabilityTarget
// for the submessages a reader actually receives: HEARTBEAT and GAP.
type readerTarget struct {
	reader *Reader
	proxy  *WriterProxy
}

func (t *readerTarget) HandleAckNack(*rtps.AckNack)   {}
func (t *readerTarget) HandleNackFrag(*rtps.NackFrag) {}

func (t *readerTarget) HandleHeartbeat(hb *rtps.Heartbeat) {
	t.reader.handleHeartbeat(t.proxy, hb)
}

func (t *readerTarget) HandleGap(g *rtps.Gap) {
	t.reader.handleGap(t.proxy, g)
}

// HandleHeartbeatFrag re-checks a not-yet-complete sample's fragment
// reassembly and, if still missing fragments, schedules a NACK_FRAG
// (spec.md §4.6.3): the writer's heartbeat_frag is a nudge for a reader
// that may have let its own retry window lapse.
func (t *readerTarget) HandleHeartbeatFrag(hbf *rtps.HeartbeatFrag) {
	t.reader.handleHeartbeatFrag(t.proxy, hbf)
}
