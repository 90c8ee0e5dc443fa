package rtps

import (
	"encoding/binary"
	"fmt"
)

// flagInvalidate (bit 1) on INFO_TS means no timestamp follows: it clears
// the carried Context.Timestamp rather than setting a new one (spec.md
// §4.2).
const flagInvalidate = 1 << 1

// InfoTS establishes (or clears) the source timestamp applied to
// subsequent DATA/DATA_FRAG submessages in the same message (spec.md
// §4.2, §4.6.4).
type InfoTS struct {
	Valid    bool
	Seconds  int32
	Fraction uint32
}

func (i *InfoTS) Kind() Kind { return KindInfoTS }

func (i *InfoTS) encode(little bool) (byte, []byte) {
	if !i.Valid {
		return flagInvalidate, nil
	}
	order := orderFor(little)
	body := make([]byte, 8)
	order.PutUint32(body[0:4], uint32(i.Seconds))
	order.PutUint32(body[4:8], i.Fraction)
	return 0, body
}

func decodeInfoTS(flags byte, payload []byte, order binary.ByteOrder) (*InfoTS, error) {
	if flags&flagInvalidate != 0 {
		return &InfoTS{Valid: false}, nil
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("rtps: INFO_TS truncated")
	}
	return &InfoTS{
		Valid:    true,
		Seconds:  int32(order.Uint32(payload[0:4])),
		Fraction: order.Uint32(payload[4:8]),
	}, nil
}

// InfoDST narrows the destination of subsequent submessages to a single
// participant's GUID prefix (spec.md §4.2, §4.6.4).
type InfoDST struct {
	GuidPrefix [12]byte
}

func (i *InfoDST) Kind() Kind { return KindInfoDST }

func (i *InfoDST) encode(little bool) (byte, []byte) {
	body := make([]byte, 12)
	copy(body, i.GuidPrefix[:])
	return 0, body
}

func decodeInfoDST(flags byte, payload []byte, order binary.ByteOrder) (*InfoDST, error) {
	if len(payload) < 12 {
		return nil, fmt.Errorf("rtps: INFO_DST truncated")
	}
	i := &InfoDST{}
	copy(i.GuidPrefix[:], payload[0:12])
	return i, nil
}
