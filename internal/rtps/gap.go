package rtps

import (
	"encoding/binary"
	"fmt"

	"github.com/hdds-io/hdds/pkg/guid"
)

// Gap tells a reader that a range of sequence numbers will never be sent,
// so it must not wait on them (spec.md §4.2, §4.6.1).
type Gap struct {
	ReaderID guid.EntityId
	WriterID guid.EntityId
	GapStart guid.SequenceNumber
	GapList  SequenceNumberSet // additional irrelevant sequence numbers past GapStart
}

func (g *Gap) Kind() Kind { return KindGap }

func (g *Gap) encode(little bool) (byte, []byte) {
	order := orderFor(little)
	body := make([]byte, 8)
	copy(body[0:4], g.ReaderID[:])
	copy(body[4:8], g.WriterID[:])
	startBuf := make([]byte, 8)
	encodeSequenceNumber(order, startBuf, g.GapStart)
	body = append(body, startBuf...)
	body = append(body, encodeSequenceNumberSet(order, g.GapList)...)
	return 0, body
}

func decodeGap(flags byte, payload []byte, order binary.ByteOrder) (*Gap, error) {
	if len(payload) < 16 {
		return nil, fmt.Errorf("rtps: GAP truncated")
	}
	g := &Gap{}
	copy(g.ReaderID[:], payload[0:4])
	copy(g.WriterID[:], payload[4:8])
	g.GapStart = decodeSequenceNumber(order, payload[8:16])

	list, _, err := decodeSequenceNumberSet(order, payload[16:])
	if err != nil {
		return nil, err
	}
	g.GapList = list
	return g, nil
}
