package rtps

import (
	"encoding/binary"
	"fmt"

	"github.com/hdds-io/hdds/pkg/guid"
)

const (
	flagFinal       = 1 << 1
	flagLiveliness  = 1 << 2
)

// Heartbeat announces a writer's available [first, last] sequence number
// range (spec.md §4.2, §4.6.1).
type Heartbeat struct {
	ReaderID    guid.EntityId // may be guid.EntityIDUnknown for a multicast heartbeat
	WriterID    guid.EntityId
	FirstSN     guid.SequenceNumber
	LastSN      guid.SequenceNumber
	Count       uint32
	Final       bool
	Liveliness  bool
}

func (h *Heartbeat) Kind() Kind { return KindHeartbeat }

func (h *Heartbeat) encode(little bool) (byte, []byte) {
	var flags byte
	if h.Final {
		flags |= flagFinal
	}
	if h.Liveliness {
		flags |= flagLiveliness
	}
	order := orderFor(little)

	body := make([]byte, 4+4+8+8+4)
	copy(body[0:4], h.ReaderID[:])
	copy(body[4:8], h.WriterID[:])
	encodeSequenceNumber(order, body[8:16], h.FirstSN)
	encodeSequenceNumber(order, body[16:24], h.LastSN)
	order.PutUint32(body[24:28], h.Count)
	return flags, body
}

func decodeHeartbeat(flags byte, payload []byte, order binary.ByteOrder) (*Heartbeat, error) {
	if len(payload) < 28 {
		return nil, fmt.Errorf("rtps: HEARTBEAT truncated")
	}
	h := &Heartbeat{Final: flags&flagFinal != 0, Liveliness: flags&flagLiveliness != 0}
	copy(h.ReaderID[:], payload[0:4])
	copy(h.WriterID[:], payload[4:8])
	h.FirstSN = decodeSequenceNumber(order, payload[8:16])
	h.LastSN = decodeSequenceNumber(order, payload[16:24])
	h.Count = order.Uint32(payload[24:28])
	return h, nil
}

// HeartbeatFrag announces the latest fragment count available for a
// sequence number (spec.md §4.2, §4.6.3).
type HeartbeatFrag struct {
	ReaderID        guid.EntityId
	WriterID        guid.EntityId
	WriterSN        guid.SequenceNumber
	LastFragmentNum guid.FragmentNumber
	Count           uint32
}

func (h *HeartbeatFrag) Kind() Kind { return KindHeartbeatFrag }

func (h *HeartbeatFrag) encode(little bool) (byte, []byte) {
	order := orderFor(little)
	body := make([]byte, 4+4+8+4+4)
	copy(body[0:4], h.ReaderID[:])
	copy(body[4:8], h.WriterID[:])
	encodeSequenceNumber(order, body[8:16], h.WriterSN)
	order.PutUint32(body[16:20], uint32(h.LastFragmentNum))
	order.PutUint32(body[20:24], h.Count)
	return 0, body
}

func decodeHeartbeatFrag(flags byte, payload []byte, order binary.ByteOrder) (*HeartbeatFrag, error) {
	if len(payload) < 24 {
		return nil, fmt.Errorf("rtps: HEARTBEAT_FRAG truncated")
	}
	h := &HeartbeatFrag{}
	copy(h.ReaderID[:], payload[0:4])
	copy(h.WriterID[:], payload[4:8])
	h.WriterSN = decodeSequenceNumber(order, payload[8:16])
	h.LastFragmentNum = guid.FragmentNumber(order.Uint32(payload[16:20]))
	h.Count = order.Uint32(payload[20:24])
	return h, nil
}
