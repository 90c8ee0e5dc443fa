package rtps

import (
	"encoding/binary"
	"fmt"

	"github.com/hdds-io/hdds/pkg/guid"
)

// AckNack is sent by a reader to acknowledge received sequence numbers and
// request retransmission of missing ones (spec.md §4.2, §4.6.2).
type AckNack struct {
	ReaderID guid.EntityId
	WriterID guid.EntityId
	Bitmap   SequenceNumberSet // Base is the lowest unacknowledged sequence number
	Count    uint32
	Final    bool
}

func (a *AckNack) Kind() Kind { return KindAckNack }

func (a *AckNack) encode(little bool) (byte, []byte) {
	var flags byte
	if a.Final {
		flags |= flagFinal
	}
	order := orderFor(little)

	body := make([]byte, 8)
	copy(body[0:4], a.ReaderID[:])
	copy(body[4:8], a.WriterID[:])
	body = append(body, encodeSequenceNumberSet(order, a.Bitmap)...)

	countBuf := make([]byte, 4)
	order.PutUint32(countBuf, a.Count)
	body = append(body, countBuf...)
	return flags, body
}

func decodeAckNack(flags byte, payload []byte, order binary.ByteOrder) (*AckNack, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("rtps: ACKNACK truncated")
	}
	a := &AckNack{Final: flags&flagFinal != 0}
	copy(a.ReaderID[:], payload[0:4])
	copy(a.WriterID[:], payload[4:8])

	bitmap, rest, err := decodeSequenceNumberSet(order, payload[8:])
	if err != nil {
		return nil, err
	}
	a.Bitmap = bitmap
	if len(rest) < 4 {
		return nil, fmt.Errorf("rtps: ACKNACK missing count")
	}
	a.Count = order.Uint32(rest[0:4])
	return a, nil
}

// NackFrag requests retransmission of specific fragments of one sample
// (spec.md §4.2, §4.6.3).
type NackFrag struct {
	ReaderID guid.EntityId
	WriterID guid.EntityId
	WriterSN guid.SequenceNumber
	Bitmap   FragmentNumberSet
	Count    uint32
}

func (n *NackFrag) Kind() Kind { return KindNackFrag }

func (n *NackFrag) encode(little bool) (byte, []byte) {
	order := orderFor(little)
	body := make([]byte, 8)
	copy(body[0:4], n.ReaderID[:])
	copy(body[4:8], n.WriterID[:])
	snBuf := make([]byte, 8)
	encodeSequenceNumber(order, snBuf, n.WriterSN)
	body = append(body, snBuf...)
	body = append(body, encodeFragmentNumberSet(order, n.Bitmap)...)

	countBuf := make([]byte, 4)
	order.PutUint32(countBuf, n.Count)
	body = append(body, countBuf...)
	return 0, body
}

func decodeNackFrag(flags byte, payload []byte, order binary.ByteOrder) (*NackFrag, error) {
	if len(payload) < 16 {
		return nil, fmt.Errorf("rtps: NACK_FRAG truncated")
	}
	n := &NackFrag{}
	copy(n.ReaderID[:], payload[0:4])
	copy(n.WriterID[:], payload[4:8])
	n.WriterSN = decodeSequenceNumber(order, payload[8:16])

	bitmap, rest, err := decodeFragmentNumberSet(order, payload[16:])
	if err != nil {
		return nil, err
	}
	n.Bitmap = bitmap
	if len(rest) < 4 {
		return nil, fmt.Errorf("rtps: NACK_FRAG missing count")
	}
	n.Count = order.Uint32(rest[0:4])
	return n, nil
}
