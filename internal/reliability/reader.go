// Copyright 2024 The hdds Authors.

package reliability

import (
	"sync"
	"time"

	"github.com/hdds-io/hdds/internal/dispatch"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// fragDueKey identifies one pending NACK_FRAG scheduling decision: a
// matched writer plus the sequence number of its not-yet-complete sample.
type fragDueKey struct {
	writer guid.Guid
	sn     guid.SequenceNumber
}

// Reader is the reliability-engine half of a DataReader: it owns the set
// of matched WriterProxy state and the piggyback-aware ACKNACK response
// timer (spec.md §4.6.2's "batching per-writer" rule). Incoming DATA
// reaches a WriterProxy directly via its Deliver method (dispatch.ReaderSink);
// HEARTBEAT and GAP are routed here through the reliability Registry's
// per-pair adapter. All proxy mutation happens under mu (spec.md §5).
type Reader struct {
	ReaderGUID guid.Guid
	Transmit   Transmitter
	opts       WriterOptions

	mu      sync.Mutex
	proxies map[guid.Guid]*WriterProxy
	due     map[guid.Guid]*time.Timer

	reassembly *dispatch.Reassembler
	fragDue    map[fragDueKey]*time.Timer

	stopOnce sync.Once
}

// NewReader builds a Reader.
func NewReader(readerGUID guid.Guid, tx Transmitter, opts WriterOptions) *Reader {
	return &Reader{
		ReaderGUID: readerGUID,
		Transmit:   tx,
		opts:       opts.withDefaults(),
		proxies:    make(map[guid.Guid]*WriterProxy),
		due:        make(map[guid.Guid]*time.Timer),
		reassembly: dispatch.NewReassembler(),
		fragDue:    make(map[fragDueKey]*time.Timer),
	}
}

// MatchWriter registers a newly matched remote writer.
func (r *Reader) MatchWriter(wp *WriterProxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[wp.WriterGUID] = wp
}

// UnmatchWriter removes a writer proxy on unmatch or lease expiry, and
// cancels any pending ACKNACK timer for it (spec.md §4.6.4).
func (r *Reader) UnmatchWriter(writer guid.Guid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.due[writer]; ok {
		t.Stop()
		delete(r.due, writer)
	}
	for key, t := range r.fragDue {
		if key.writer == writer {
			t.Stop()
			delete(r.fragDue, key)
		}
	}
	delete(r.proxies, writer)
}

// Proxy returns the WriterProxy matched to writer, if any.
func (r *Reader) Proxy(writer guid.Guid) (*WriterProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.proxies[writer]
	return wp, ok
}

// proxyByEntityID resolves a matched writer proxy by entity id alone, used
// by the Registry when a submessage only carries bare entity ids; a reader
// only ever matches a small number of writers so a linear scan is fine.
func (r *Reader) proxyByEntityID(writer guid.EntityId) (*WriterProxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for g, wp := range r.proxies {
		if g.EntityID == writer {
			return wp, true
		}
	}
	return nil, false
}

// handleHeartbeat applies spec.md §4.6.2's HEARTBEAT receipt rule for a
// specific already-resolved writer proxy, scheduling the ACKNACK within
// heartbeat_response_delay rather than sending synchronously so that
// concurrent misses batch into one message.
func (r *Reader) handleHeartbeat(wp *WriterProxy, hb *rtps.Heartbeat) {
	due, missing := wp.HandleHeartbeat(hb.Count, hb.FirstSN, hb.LastSN)
	if !due {
		return
	}
	r.scheduleAckNack(wp, hb.ReaderID, hb.WriterID, missing)
}

// handleGap applies spec.md §4.6.2's GAP receipt rule to an already-resolved
// writer proxy.
func (r *Reader) handleGap(wp *WriterProxy, g *rtps.Gap) {
	wp.HandleGap(g)
}

func (r *Reader) scheduleAckNack(wp *WriterProxy, readerID, writerID guid.EntityId, missing []guid.SequenceNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, pending := r.due[wp.WriterGUID]; pending {
		return // already scheduled; the fired timer re-reads the current missing set
	}
	t := time.AfterFunc(r.opts.HeartbeatResponseDelay, func() {
		r.fireAckNack(wp, readerID, writerID)
	})
	r.due[wp.WriterGUID] = t
}

// handleDataFrag folds one DATA_FRAG into this reader's reassembler,
// delivering the sample through wp once complete (spec.md §4.4 rule 5) or
// scheduling a NACK_FRAG for whatever is still missing (spec.md §4.6.3).
func (r *Reader) handleDataFrag(wp *WriterProxy, df *rtps.DataFrag) {
	complete, payload, inlineQoS := r.reassembly.Add(wp.WriterGUID.Prefix, df)
	if complete {
		r.cancelNackFrag(wp.WriterGUID, df.WriterSN)
		wp.HandleData(df.WriterSN, inlineQoS, payload, false)
		return
	}

	missing := r.reassembly.Missing(wp.WriterGUID, df.WriterSN)
	if len(missing) == 0 {
		return
	}
	r.scheduleNackFrag(wp, df.ReaderID, df.WriterID, df.WriterSN, missing)
}

// handleHeartbeatFrag re-checks a not-yet-complete sample's reassembly
// and, if fragments are still missing, schedules a NACK_FRAG (spec.md
// §4.6.3): the writer's periodic heartbeat_frag is the recovery path for a
// reader whose own retry already fired and still came up short.
func (r *Reader) handleHeartbeatFrag(wp *WriterProxy, hbf *rtps.HeartbeatFrag) {
	missing := r.reassembly.Missing(wp.WriterGUID, hbf.WriterSN)
	if len(missing) == 0 {
		return
	}
	r.scheduleNackFrag(wp, hbf.ReaderID, hbf.WriterID, hbf.WriterSN, missing)
}

func (r *Reader) scheduleNackFrag(wp *WriterProxy, readerID, writerID guid.EntityId, sn guid.SequenceNumber, missing []uint32) {
	key := fragDueKey{writer: wp.WriterGUID, sn: sn}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, pending := r.fragDue[key]; pending {
		return // already scheduled; the fired timer re-reads the current missing set
	}
	t := time.AfterFunc(r.opts.HeartbeatResponseDelay, func() {
		r.fireNackFrag(wp, readerID, writerID, sn)
	})
	r.fragDue[key] = t
}

func (r *Reader) cancelNackFrag(writer guid.Guid, sn guid.SequenceNumber) {
	key := fragDueKey{writer: writer, sn: sn}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.fragDue[key]; ok {
		t.Stop()
		delete(r.fragDue, key)
	}
}

func (r *Reader) fireNackFrag(wp *WriterProxy, readerID, writerID guid.EntityId, sn guid.SequenceNumber) {
	key := fragDueKey{writer: wp.WriterGUID, sn: sn}
	r.mu.Lock()
	delete(r.fragDue, key)
	r.mu.Unlock()

	missing := r.reassembly.Missing(wp.WriterGUID, sn)
	if len(missing) == 0 {
		return // completed (or evicted) in the meantime
	}
	members := make([]guid.FragmentNumber, len(missing))
	for i, idx := range missing {
		members[i] = guid.FragmentNumber(idx + 1) // wire fragment numbers are 1-based
	}

	wp.nackFragCount++
	nf := &rtps.NackFrag{
		ReaderID: readerID,
		WriterID: writerID,
		WriterSN: sn,
		Bitmap:   rtps.NewFragmentNumberSet(members[0], members),
		Count:    wp.nackFragCount,
	}
	if r.Transmit == nil {
		return
	}
	msg := &rtps.Message{
		Header: rtps.Header{
			Magic:      rtps.MagicRTPS,
			Version:    rtps.DefaultProtocolVersion,
			Vendor:     rtps.VendorIDHdds,
			GuidPrefix: r.ReaderGUID.Prefix,
		},
		Items: []rtps.Item{{Kind: nf.Kind(), Body: nf}},
	}
	if err := r.Transmit.Send(wp.UnicastLocators, msg); err != nil {
		hlog.Warn("reliability: NACK_FRAG send to writer %v failed: %v", wp.WriterGUID, err)
	}
}

func (r *Reader) fireAckNack(wp *WriterProxy, readerID, writerID guid.EntityId) {
	r.mu.Lock()
	delete(r.due, wp.WriterGUID)
	r.mu.Unlock()

	missing := wp.missingInRange(wp.HeartbeatFirst, wp.HeartbeatLast)
	an := wp.ComposeAckNack(readerID, writerID, missing, len(missing) == 0)
	if r.Transmit == nil {
		return
	}
	msg := &rtps.Message{
		Header: rtps.Header{
			Magic:      rtps.MagicRTPS,
			Version:    rtps.DefaultProtocolVersion,
			Vendor:     rtps.VendorIDHdds,
			GuidPrefix: r.ReaderGUID.Prefix,
		},
		Items: []rtps.Item{{Kind: an.Kind(), Body: an}},
	}
	if err := r.Transmit.Send(wp.UnicastLocators, msg); err != nil {
		hlog.Warn("reliability: ACKNACK send to writer %v failed: %v", wp.WriterGUID, err)
	}
}

// Close cancels every pending ACKNACK and NACK_FRAG timer.
func (r *Reader) Close() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, t := range r.due {
			t.Stop()
		}
		for _, t := range r.fragDue {
			t.Stop()
		}
	})
}
