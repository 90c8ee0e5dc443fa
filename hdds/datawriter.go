// Copyright 2024 The hdds Authors.

package hdds

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hdds-io/hdds/internal/dispatch"
	"github.com/hdds-io/hdds/internal/discovery"
	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/reliability"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// DataWriter publishes samples of type T on a Topic (spec.md §4.8). Every
// write is appended to the history cache, fanned out to same-process
// readers through the TopicMerger, and sent over the wire to every
// currently matched remote ReaderProxy.
type DataWriter[T any] struct {
	p      *Participant
	topic  Topic
	guid   guid.Guid
	policy qos.Policy
	codec  Codec[T]

	engine *reliability.Writer
	merger *dispatch.TopicMerger
	status *StatusCondition

	mu      sync.Mutex
	matched map[guid.Guid]*reliability.ReaderProxy
	closed  bool

	hbFragCount uint32 // atomic, counts outgoing HEARTBEAT_FRAG
}

// CreateWriter allocates a new DataWriter on p, announcing it over SEDP and
// matching it against every already-known remote reader (spec.md §4.8's
// Participant::create_writer).
func CreateWriter[T any](p *Participant, topic Topic, policy qos.Policy, codec Codec[T]) (*DataWriter[T], error) {
	if p.isShutdown() {
		return nil, ErrShutdown
	}

	g := guid.Guid{Prefix: p.LocalPrefix, EntityID: p.allocator.Next(guid.KindWriterWithKey)}
	cache := newHistoryCache(policy)
	tx := &participantTransmitter{p: p}

	w := &DataWriter[T]{
		p:       p,
		topic:   topic,
		guid:    g,
		policy:  policy,
		codec:   codec,
		engine:  reliability.NewWriter(g, policy.Reliability == qos.Reliable, cache, tx, reliability.WriterOptions{}),
		merger:  p.mergerFor(topic.Name),
		status:  newStatusCondition(nextConditionID()),
		matched: make(map[guid.Guid]*reliability.ReaderProxy),
	}

	p.reliabilityReg.RegisterWriter(w.engine)

	le := &localEndpoint{
		info: discovery.LocalEndpoint{
			Guid:     g,
			IsWriter: true,
			Topic:    topic.Name,
			TypeName: topic.TypeName,
			Policy:   policy,
		},
		onMatch:   w.onMatch,
		onUnmatch: w.onUnmatch,
	}
	p.registerLocal(le)

	p.sedp.Announce(&discovery.EndpointInfo{
		Guid:            g,
		IsWriter:        true,
		Topic:           topic.Name,
		TypeName:        topic.TypeName,
		Policy:          policy,
		UnicastLocators: p.locatorsOf(),
		LastSeen:        time.Now(),
	})

	return w, nil
}

// onMatch registers a newly matched remote reader's proxy (spec.md §4.7.3
// "on match" action).
func (w *DataWriter[T]) onMatch(remote *discovery.EndpointInfo) {
	rp := reliability.NewReaderProxy(remote.Guid, remote.UnicastLocators)

	w.mu.Lock()
	w.matched[remote.Guid] = rp
	w.mu.Unlock()

	w.engine.MatchReader(rp)
	w.status.notify()
}

// onUnmatch drops a remote reader proxy on unmatch or lease expiry.
func (w *DataWriter[T]) onUnmatch(remote guid.Guid) {
	w.mu.Lock()
	_, ok := w.matched[remote]
	delete(w.matched, remote)
	w.mu.Unlock()
	if !ok {
		return
	}
	w.engine.UnmatchReader(remote)
	w.status.notify()
}

// Write serializes v, appends it to the history cache under the next
// sequence number, delivers it to every same-process matched reader without
// serializing again, and sends it to every currently matched remote reader
// (spec.md §4.8's DataWriter::write).
func (w *DataWriter[T]) Write(v T) error {
	return w.writeAt(v, time.Time{})
}

// WriteAt writes v carrying an explicit source timestamp, prefixing the
// RTPS message with INFO_TS (spec.md §4.9's DESTINATION_ORDER=BySourceTimestamp
// support).
func (w *DataWriter[T]) WriteAt(v T, timestamp time.Time) error {
	return w.writeAt(v, timestamp)
}

func (w *DataWriter[T]) writeAt(v T, timestamp time.Time) error {
	if w.p.isShutdown() {
		return ErrShutdown
	}

	payload, err := w.codec.Marshal(v)
	if err != nil {
		return err
	}

	sn := w.engine.Cache.Append(nil, payload, false)

	w.merger.Push(dispatch.IntraSample{WriterGUID: w.guid.String(), Payload: v})

	w.mu.Lock()
	proxies := make([]*reliability.ReaderProxy, 0, len(w.matched))
	for _, rp := range w.matched {
		proxies = append(proxies, rp)
	}
	w.mu.Unlock()

	if len(proxies) == 0 {
		return nil
	}

	var ts *rtps.InfoTS
	if !timestamp.IsZero() {
		ts = infoTSFromTime(timestamp)
	}

	tx := &participantTransmitter{p: w.p}
	fragmented := len(payload) > reliability.DefaultFragmentSize
	for _, rp := range proxies {
		items := make([]rtps.Item, 0, 3)
		if ts != nil {
			items = append(items, rtps.Item{Kind: ts.Kind(), Body: ts})
		}

		if fragmented {
			// Spec.md §4.6.3: a sample larger than one DATA submessage's
			// worth is split into DATA_FRAG, followed by a HEARTBEAT_FRAG
			// announcing the full fragment count so the reader notices if
			// the final fragment never arrives.
			frags := reliability.BuildDataFrags(rp.ReaderGUID.EntityID, w.guid.EntityID, sn, payload, reliability.DefaultFragmentSize, nil)
			for _, df := range frags {
				items = append(items, rtps.Item{Kind: df.Kind(), Body: df})
			}
			hbf := &rtps.HeartbeatFrag{
				ReaderID:        rp.ReaderGUID.EntityID,
				WriterID:        w.guid.EntityID,
				WriterSN:        sn,
				LastFragmentNum: guid.FragmentNumber(len(frags)),
				Count:           atomic.AddUint32(&w.hbFragCount, 1),
			}
			items = append(items, rtps.Item{Kind: hbf.Kind(), Body: hbf})
		} else {
			d := &rtps.Data{
				ReaderID: rp.ReaderGUID.EntityID,
				WriterID: w.guid.EntityID,
				WriterSN: sn,
				Payload:  payload,
			}
			items = append(items, rtps.Item{Kind: d.Kind(), Body: d})
		}

		msg := &rtps.Message{
			Header: rtps.Header{
				Magic:      rtps.MagicRTPS,
				Version:    rtps.DefaultProtocolVersion,
				Vendor:     rtps.VendorIDHdds,
				GuidPrefix: w.guid.Prefix,
			},
			Items: items,
		}
		// A send failure to one reader is logged and does not fail the
		// others (spec.md §7: transport errors are retried/logged
		// internally, not surfaced per matched reader).
		if err := tx.Send(rp.UnicastLocators, msg); err != nil {
			hlog.Warn("hdds: write to reader %v failed: %v", rp.ReaderGUID, err)
		}
	}
	return nil
}

// infoTSFromTime builds the INFO_TS submessage carrying t as an RTPS
// timestamp: seconds since the Unix epoch plus a 2^32ths-of-a-second
// fraction (spec.md §4.2).
func infoTSFromTime(t time.Time) *rtps.InfoTS {
	sec := t.Unix()
	frac := uint32((uint64(t.Nanosecond()) << 32) / 1e9)
	return &rtps.InfoTS{Valid: true, Seconds: int32(sec), Fraction: frac}
}

// GetStatusCondition returns the condition that fires on match/unmatch
// (spec.md §4.8).
func (w *DataWriter[T]) GetStatusCondition() *StatusCondition { return w.status }

// AssertLiveliness manually asserts liveliness for LIVELINESS policies of
// ManualByTopic/ManualByParticipant; a no-op heartbeat tick is sufficient
// since the writer's heartbeat scheduler already tracks reader activity
// (spec.md §4.9).
func (w *DataWriter[T]) AssertLiveliness() {
	w.engine.AssertLiveliness()
}

// Close withdraws the writer from discovery and releases its reliability
// engine (spec.md §4.8).
func (w *DataWriter[T]) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.p.unregisterLocal(w.guid.EntityID)
	w.p.sedp.Withdraw(w.guid)
	w.p.reliabilityReg.UnregisterWriter(w.guid.EntityID)
	return nil
}
