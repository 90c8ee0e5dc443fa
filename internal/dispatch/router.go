package dispatch

import (
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// DiscoverySink receives classified SPDP/SEDP traffic (spec.md §4.4 rule 2).
type DiscoverySink interface {
	HandleSPDP(item rtps.Item, ctx rtps.Context)
	HandleSEDP(item rtps.Item, ctx rtps.Context)
}

// ReliabilityTarget is the per-endpoint state machine that consumes
// HEARTBEAT/GAP/ACKNACK/NACK_FRAG/HEARTBEAT_FRAG traffic (spec.md §4.4
// rule 3). One ReliabilityTarget exists per matched (writer, reader) pair.
type ReliabilityTarget interface {
	HandleHeartbeat(*rtps.Heartbeat)
	HandleGap(*rtps.Gap)
	HandleAckNack(*rtps.AckNack)
	HandleNackFrag(*rtps.NackFrag)
	HandleHeartbeatFrag(*rtps.HeartbeatFrag)
}

// ReliabilityLookup resolves the ReliabilityTarget for a submessage's
// (writer, reader) identity pair, in either direction.
type ReliabilityLookup interface {
	Lookup(writer, reader guid.EntityId) (ReliabilityTarget, bool)
}

// ReaderSink is a matched reader's sample intake.
type ReaderSink interface {
	Deliver(writerID guid.EntityId, sn guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool)
}

// ReaderLookup resolves the reader(s) bound to a known writer guid
// (spec.md §4.4 rule 4, "writer is known" branch).
type ReaderLookup interface {
	LookupByWriter(prefix guid.GuidPrefix, writer guid.EntityId) ([]ReaderSink, bool)
}

// FragSink is a ReaderSink that reassembles DATA_FRAG itself rather than
// relying on the Router's generic fallback Reassembler: the reliability
// engine's WriterProxy tracks fragments per matched writer so it can drive
// NACK_FRAG on loss (spec.md §4.6.3). A ReaderSink that doesn't implement
// this falls back to routeDataFrag's own Reassembler, which has no loss
// recovery of its own.
type FragSink interface {
	DeliverFrag(df *rtps.DataFrag)
}

// GenericSink is the topic-stamping demultiplexer used when the writer is
// not individually known but its topic can still be resolved (spec.md
// §4.4 rule 4, fallback branch).
type GenericSink interface {
	DeliverByTopic(topic string, writerID guid.EntityId, sn guid.SequenceNumber, payload []byte)
}

// Router implements spec.md §4.4's five ordered routing rules.
type Router struct {
	LocalPrefix guid.GuidPrefix
	Discovery   DiscoverySink
	Reliability ReliabilityLookup
	Readers     ReaderLookup
	WriterIndex *WriterGuidIndex
	Generic     GenericSink

	reassembly *Reassembler
	droppedOOB uint64
}

// NewRouter builds a Router with a fresh fragment reassembler.
func NewRouter(local guid.GuidPrefix) *Router {
	return &Router{LocalPrefix: local, reassembly: NewReassembler()}
}

// Route applies the five routing rules to one classified message,
// delivering each tagged submessage to its destination.
func (r *Router) Route(sourcePrefix guid.GuidPrefix, c *Classified) {
	for _, t := range c.Items {
		// Rule 1: INFO_DST scoping.
		if !isOurs(t.Context, r.LocalPrefix) && !isBroadcastDiscovery(t.Kind) {
			r.droppedOOB++
			continue
		}
		r.routeOne(sourcePrefix, t)
	}
}

func isBroadcastDiscovery(k PacketKind) bool {
	return k == KindSPDP || k == KindSEDP
}

func (r *Router) routeOne(sourcePrefix guid.GuidPrefix, t Tagged) {
	switch t.Kind {
	case KindSPDP:
		if r.Discovery != nil {
			r.Discovery.HandleSPDP(t.Item, t.Context)
		}
	case KindSEDP:
		if r.Discovery != nil {
			r.Discovery.HandleSEDP(t.Item, t.Context)
		}
	case KindHeartbeat, KindGap, KindAckNack, KindNackFrag, KindHeartbeatFrag:
		r.routeReliability(t)
	case KindData:
		d := t.Item.Body.(*rtps.Data)
		r.routeData(sourcePrefix, d.WriterID, d.WriterSN, d.InlineQoS, d.Payload, d.KeyOnly)
	case KindDataFrag:
		r.routeDataFrag(sourcePrefix, t.Item.Body.(*rtps.DataFrag))
	default:
		hlog.Debug("dispatch: dropping unroutable submessage kind %v", t.Kind)
	}
}

func (r *Router) routeReliability(t Tagged) {
	if r.Reliability == nil {
		return
	}
	var writer, reader guid.EntityId
	switch b := t.Item.Body.(type) {
	case *rtps.Heartbeat:
		writer, reader = b.WriterID, b.ReaderID
	case *rtps.Gap:
		writer, reader = b.WriterID, b.ReaderID
	case *rtps.AckNack:
		writer, reader = b.WriterID, b.ReaderID
	case *rtps.NackFrag:
		writer, reader = b.WriterID, b.ReaderID
	case *rtps.HeartbeatFrag:
		writer, reader = b.WriterID, b.ReaderID
	}
	target, ok := r.Reliability.Lookup(writer, reader)
	if !ok {
		hlog.Debug("dispatch: no reliability target for writer=%v reader=%v", writer, reader)
		return
	}
	switch b := t.Item.Body.(type) {
	case *rtps.Heartbeat:
		target.HandleHeartbeat(b)
	case *rtps.Gap:
		target.HandleGap(b)
	case *rtps.AckNack:
		target.HandleAckNack(b)
	case *rtps.NackFrag:
		target.HandleNackFrag(b)
	case *rtps.HeartbeatFrag:
		target.HandleHeartbeatFrag(b)
	}
}

func (r *Router) routeData(sourcePrefix guid.GuidPrefix, writerID guid.EntityId, sn guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool) {
	if r.Readers != nil {
		if sinks, ok := r.Readers.LookupByWriter(sourcePrefix, writerID); ok {
			for _, sink := range sinks {
				sink.Deliver(writerID, sn, inlineQoS, payload, keyOnly)
			}
			return
		}
	}
	if r.WriterIndex != nil && r.Generic != nil {
		if topic, ok := r.WriterIndex.Lookup(guid.Guid{Prefix: sourcePrefix, EntityID: writerID}); ok {
			r.Generic.DeliverByTopic(topic, writerID, sn, payload)
			return
		}
	}
	hlog.Debug("dispatch: no route for data from writer %v seq %d", writerID, sn)
}

func (r *Router) routeDataFrag(sourcePrefix guid.GuidPrefix, df *rtps.DataFrag) {
	if r.Readers != nil {
		if sinks, ok := r.Readers.LookupByWriter(sourcePrefix, df.WriterID); ok {
			delivered := false
			for _, sink := range sinks {
				if fs, ok := sink.(FragSink); ok {
					fs.DeliverFrag(df)
					delivered = true
				}
			}
			if delivered {
				return
			}
		}
	}

	complete, payload, inlineQoS := r.reassembly.Add(sourcePrefix, df)
	if !complete {
		return
	}
	r.routeData(sourcePrefix, df.WriterID, df.WriterSN, inlineQoS, payload, false)
}

// DroppedOutOfScope is a diagnostic counter of submessages dropped by
// rule 1 (addressed to a different participant).
func (r *Router) DroppedOutOfScope() uint64 { return r.droppedOOB }
