// Copyright 2024 The hdds Authors.

package reliability

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/hdds-io/hdds/internal/history"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// Transmitter sends one composed RTPS message to a set of locators. The
// reliability engine never opens sockets itself; it is handed a
// transmitter by whatever owns the transport.Transport (spec.md §4.3/§4.6).
type Transmitter interface {
	Send(locators []transport.Locator, msg *rtps.Message) error
}

// WriterOptions configures the optional knobs of a Writer's reliability
// behavior; zero value uses the spec.md §4.6 defaults.
type WriterOptions struct {
	HeartbeatPeriod        time.Duration
	HeartbeatResponseDelay time.Duration
	MaxResendRatePerSecond int
	LivelinessTimeout      time.Duration
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.HeartbeatPeriod <= 0 {
		o.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if o.HeartbeatResponseDelay <= 0 {
		o.HeartbeatResponseDelay = DefaultHeartbeatResponseDelay
	}
	if o.LivelinessTimeout <= 0 {
		o.LivelinessTimeout = DefaultLivelinessTimeout
	}
	return o
}

// Writer is the reliability-engine half of a DataWriter: it owns the
// HistoryCache, the set of matched ReaderProxy state, and the heartbeat
// scheduler goroutine. All proxy mutation happens on the scheduler
// goroutine or inside a call from the dispatch Router, both of which hold
// mu, so a ReaderProxy is never touched concurrently (spec.md §5).
type Writer struct {
	WriterGUID guid.Guid
	Reliable   bool
	Cache      *history.Cache
	Transmit   Transmitter
	opts       WriterOptions

	mu       sync.Mutex
	proxies  map[guid.Guid]*ReaderProxy
	hbCount  uint32
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWriter builds a Writer and starts its heartbeat scheduler goroutine
// when reliable is true (best-effort writers never send HEARTBEAT,
// matching spec.md's "best-effort skips all this").
func NewWriter(writerGUID guid.Guid, reliable bool, cache *history.Cache, tx Transmitter, opts WriterOptions) *Writer {
	w := &Writer{
		WriterGUID: writerGUID,
		Reliable:   reliable,
		Cache:      cache,
		Transmit:   tx,
		opts:       opts.withDefaults(),
		proxies:    make(map[guid.Guid]*ReaderProxy),
		stopCh:     make(chan struct{}),
	}
	if reliable {
		w.wg.Add(1)
		go w.runHeartbeatScheduler()
	}
	return w
}

// MatchReader registers a newly matched remote reader (spec.md §4.7.3 "on
// match"). A reliable writer sends it a HEARTBEAT announcing the retained
// range at once, so the reader can request retained samples by ACKNACK;
// no sample is pushed on match, and a best-effort writer sends nothing.
func (w *Writer) MatchReader(rp *ReaderProxy) {
	w.mu.Lock()
	rp.State = StateAnnounce
	w.proxies[rp.ReaderGUID] = rp
	w.mu.Unlock()

	if w.Reliable {
		w.sendHeartbeatTo(rp)
	}
}

// UnmatchReader removes a reader proxy on unmatch or lease expiry (spec.md
// §4.6.4's Terminated transition).
func (w *Writer) UnmatchReader(reader guid.Guid) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rp, ok := w.proxies[reader]; ok {
		rp.terminate()
		delete(w.proxies, reader)
	}
}

// Proxy returns the ReaderProxy matched to reader, if any. Intended for
// tests and for the registry adapter; callers must not retain it across
// goroutine boundaries.
func (w *Writer) Proxy(reader guid.Guid) (*ReaderProxy, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rp, ok := w.proxies[reader]
	return rp, ok
}

// proxyByEntityID resolves a matched reader proxy by entity id alone, used
// by the Registry when a submessage only carries bare entity ids; a writer
// only ever matches a small number of readers so a linear scan is fine.
func (w *Writer) proxyByEntityID(reader guid.EntityId) (*ReaderProxy, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for g, rp := range w.proxies {
		if g.EntityID == reader {
			return rp, true
		}
	}
	return nil, false
}

// HandleAckNack applies spec.md §4.6.1's NACK handling for the reader that
// sent it, coalescing retransmits and GAPs into as few messages as
// possible and bounding the resend rate.
func (w *Writer) HandleAckNack(readerPrefix guid.GuidPrefix, an *rtps.AckNack) {
	reader := guid.Guid{Prefix: readerPrefix, EntityID: an.ReaderID}

	w.mu.Lock()
	rp, ok := w.proxies[reader]
	w.mu.Unlock()
	if !ok {
		hlog.Debug("reliability: ACKNACK from unmatched reader %v", reader)
		return
	}

	req := rp.handleAckNack(an.Count, an.Bitmap.Base, an.Bitmap.Members(), func(seq guid.SequenceNumber) bool {
		_, present := w.Cache.Get(seq)
		return present
	})
	if req == nil {
		return
	}

	w.Cache.AdvanceAcked(reader, rp.AckedUpTo)
	w.sendRetransmission(rp, req)
}

// HandleNackFrag applies spec.md §4.6.3's NACK_FRAG handling: resend just
// the requested fragments of one sample by re-slicing the cached
// unfragmented payload, or GAP the whole sequence number if it has already
// been evicted from history.
func (w *Writer) HandleNackFrag(readerPrefix guid.GuidPrefix, nf *rtps.NackFrag) {
	reader := guid.Guid{Prefix: readerPrefix, EntityID: nf.ReaderID}

	w.mu.Lock()
	rp, ok := w.proxies[reader]
	w.mu.Unlock()
	if !ok {
		hlog.Debug("reliability: NACK_FRAG from unmatched reader %v", reader)
		return
	}

	s, ok := w.Cache.Get(nf.WriterSN)
	if !ok {
		g := &rtps.Gap{
			ReaderID: rp.ReaderGUID.EntityID,
			WriterID: w.WriterGUID.EntityID,
			GapStart: nf.WriterSN,
			GapList:  rtps.NewSequenceNumberSet(nf.WriterSN, []guid.SequenceNumber{nf.WriterSN}),
		}
		w.send(rp.UnicastLocators, []rtps.Item{{Kind: g.Kind(), Body: g}})
		return
	}

	if !rp.allowResend(w.opts.MaxResendRatePerSecond, time.Now()) {
		return
	}

	frags := BuildDataFragRange(rp.ReaderGUID.EntityID, w.WriterGUID.EntityID, nf.WriterSN, s.Payload, DefaultFragmentSize, nf.Bitmap.Members())
	if len(frags) == 0 {
		return
	}
	items := make([]rtps.Item, 0, len(frags))
	for _, df := range frags {
		items = append(items, rtps.Item{Kind: df.Kind(), Body: df})
	}
	w.send(rp.UnicastLocators, items)
}

func (w *Writer) sendRetransmission(rp *ReaderProxy, req *RetransmitRequest) {
	now := time.Now()
	var items []rtps.Item

	for _, seq := range req.Resend {
		if !rp.allowResend(w.opts.MaxResendRatePerSecond, now) {
			break
		}
		s, ok := w.Cache.Get(seq)
		if !ok {
			continue
		}
		d := &rtps.Data{
			ReaderID:  rp.ReaderGUID.EntityID,
			WriterID:  w.WriterGUID.EntityID,
			WriterSN:  seq,
			InlineQoS: s.InlineQoS,
			Payload:   s.Payload,
			KeyOnly:   s.KeyOnly,
		}
		items = append(items, rtps.Item{Kind: d.Kind(), Body: d})
	}

	if len(req.Gap) > 0 {
		sorted := append([]guid.SequenceNumber(nil), req.Gap...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		g := &rtps.Gap{
			ReaderID: rp.ReaderGUID.EntityID,
			WriterID: w.WriterGUID.EntityID,
			GapStart: sorted[0],
			GapList:  rtps.NewSequenceNumberSet(sorted[0], sorted),
		}
		items = append(items, rtps.Item{Kind: g.Kind(), Body: g})
	}

	if len(items) == 0 {
		return
	}
	w.send(rp.UnicastLocators, items)
}

// runHeartbeatScheduler is the single goroutine that periodically
// announces this writer's available range to every matched reader,
// jittered the same way the teacher jitters its reconnect/reaper loops
// (internal/ron.Server.clientReaper's fixed-rate sweep, meshage.checkDegree's
// randomized backoff).
func (w *Writer) runHeartbeatScheduler() {
	defer w.wg.Done()
	t := time.NewTimer(w.jitteredPeriod())
	defer t.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-t.C:
			w.sendHeartbeatToAll()
			t.Reset(w.jitteredPeriod())
		}
	}
}

func (w *Writer) jitteredPeriod() time.Duration {
	base := w.opts.HeartbeatPeriod
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

func (w *Writer) sendHeartbeatToAll() {
	w.mu.Lock()
	proxies := make([]*ReaderProxy, 0, len(w.proxies))
	for _, rp := range w.proxies {
		proxies = append(proxies, rp)
	}
	w.mu.Unlock()

	now := time.Now()
	for _, rp := range proxies {
		rp.checkUnresponsive(w.opts.LivelinessTimeout, now)
		if rp.State == StateUnresponsive || rp.State == StateTerminated {
			continue
		}
		w.sendHeartbeatTo(rp)
	}
}

func (w *Writer) sendHeartbeatTo(rp *ReaderProxy) {
	w.mu.Lock()
	w.hbCount++
	count := w.hbCount
	w.mu.Unlock()

	first := w.Cache.FirstSequenceNumber()
	last := w.Cache.LastSequenceNumber()

	outstanding := len(rp.Requested) > 0
	hb := &rtps.Heartbeat{
		ReaderID: rp.ReaderGUID.EntityID,
		WriterID: w.WriterGUID.EntityID,
		FirstSN:  first,
		LastSN:   last,
		Count:    count,
		Final:    !outstanding,
	}
	rp.noteHeartbeatSent()
	w.send(rp.UnicastLocators, []rtps.Item{{Kind: hb.Kind(), Body: hb}})
}

func (w *Writer) send(locators []transport.Locator, items []rtps.Item) {
	if w.Transmit == nil {
		return
	}
	msg := &rtps.Message{
		Header: rtps.Header{
			Magic:      rtps.MagicRTPS,
			Version:    rtps.DefaultProtocolVersion,
			Vendor:     rtps.VendorIDHdds,
			GuidPrefix: w.WriterGUID.Prefix,
		},
		Items: items,
	}
	if err := w.Transmit.Send(locators, msg); err != nil {
		hlog.Warn("reliability: send to writer %v failed: %v", w.WriterGUID, err)
	}
}

// AssertLiveliness manually announces this writer to every matched reader
// immediately, for LIVELINESS policies of ManualByTopic/ManualByParticipant
// where the application (not just the periodic scheduler) is responsible
// for keeping the lease alive (spec.md §4.9).
func (w *Writer) AssertLiveliness() {
	if !w.Reliable {
		return
	}
	w.sendHeartbeatToAll()
}

// Close stops the heartbeat scheduler goroutine, if running.
func (w *Writer) Close() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}
