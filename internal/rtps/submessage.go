package rtps

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies a submessage type by its wire id (spec.md §4.2).
type Kind byte

const (
	KindData          Kind = 0x15
	KindDataFrag      Kind = 0x16
	KindHeartbeat     Kind = 0x07
	KindAckNack       Kind = 0x06
	KindGap           Kind = 0x08
	KindNackFrag      Kind = 0x12
	KindHeartbeatFrag Kind = 0x13
	KindInfoTS        Kind = 0x09
	KindInfoDST       Kind = 0x0E
	KindUnknown       Kind = 0x00 // synthetic: unrecognized or vendor-specific id
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindDataFrag:
		return "DATA_FRAG"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindAckNack:
		return "ACKNACK"
	case KindGap:
		return "GAP"
	case KindNackFrag:
		return "NACK_FRAG"
	case KindHeartbeatFrag:
		return "HEARTBEAT_FRAG"
	case KindInfoTS:
		return "INFO_TS"
	case KindInfoDST:
		return "INFO_DST"
	default:
		return fmt.Sprintf("UNKNOWN(%#02x)", byte(k))
	}
}

// VendorSubmessageThreshold: ids at or above this are vendor-specific and
// are logged and skipped rather than treated as a parse error (spec.md
// §4.7.4).
const VendorSubmessageThreshold = 0x80

// flagLittleEndian is bit 0 of every submessage's flags byte.
const flagLittleEndian = 1 << 0

func byteOrder(flags byte) binary.ByteOrder {
	if flags&flagLittleEndian != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func endiannessFlag(little bool) byte {
	if little {
		return flagLittleEndian
	}
	return 0
}

// Body is implemented by every concrete submessage payload type.
type Body interface {
	Kind() Kind
	encode(little bool) (flags byte, payload []byte)
}

// Unknown preserves the raw bytes of a submessage this codec does not
// decode further: a vendor-specific id (>= VendorSubmessageThreshold) or
// any id this version does not implement. Classification never errors on
// these (spec.md §4.4, §4.7.4).
type Unknown struct {
	RawKind Kind
	Flags   byte
	Payload []byte
}

func (u *Unknown) Kind() Kind { return u.RawKind }
func (u *Unknown) encode(bool) (byte, []byte) { return u.Flags, u.Payload }

// Timestamp is the RTPS Time_t used by INFO_TS: seconds since the RTPS
// epoch plus a fractional part in 2^-32 second units.
type Timestamp struct {
	Seconds  int32
	Fraction uint32
}

// Context is the decode-time state carried across submessages within one
// Message: the INFO_TS in effect for subsequent DATA/DATA_FRAG and the
// INFO_DST-narrowed destination prefix, per spec.md §4.2's context-carry
// rule.
type Context struct {
	LittleEndian bool
	Timestamp    *Timestamp
	DestPrefix   *[12]byte
}

// Item is one decoded submessage plus the Context in effect when it was
// parsed.
type Item struct {
	Kind    Kind
	Body    Body
	Context Context
}

// Message is a decoded RTPS packet: header plus an ordered list of
// submessages.
type Message struct {
	Header Header
	Items  []Item
}

const submessageHeaderLen = 4

// encodeSubmessage writes one submessage's id/flags/octets-to-next-header
// and body, padding the body to a multiple of 4 bytes as RTPS requires.
func encodeSubmessage(little bool, body Body) []byte {
	flags, payload := body.encode(little)
	flags |= endiannessFlag(little)

	pad := (4 - len(payload)%4) % 4
	padded := make([]byte, len(payload)+pad)
	copy(padded, payload)

	out := make([]byte, submessageHeaderLen+len(padded))
	out[0] = byte(body.Kind())
	out[1] = flags
	byteOrder(flags).PutUint16(out[2:4], uint16(len(padded)))
	copy(out[4:], padded)
	return out
}

// EncodeMessage serializes a full RTPS message: header then each
// submessage back to back.
func EncodeMessage(m *Message) []byte {
	out := EncodeHeader(m.Header)
	for _, item := range m.Items {
		out = append(out, encodeSubmessage(item.Context.LittleEndian, item.Body)...)
	}
	return out
}

// DecodeMessage parses a full RTPS message, applying the INFO_TS/INFO_DST
// context-carry rules and tolerating unknown/vendor submessage ids
// (spec.md §4.2, §4.4, §4.7.4).
func DecodeMessage(raw []byte) (*Message, error) {
	header, rest, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: header}
	var ctx Context

	for len(rest) > 0 {
		if len(rest) < submessageHeaderLen {
			return nil, fmt.Errorf("rtps: truncated submessage header (%d bytes left)", len(rest))
		}
		kind := Kind(rest[0])
		flags := rest[1]
		little := flags&flagLittleEndian != 0
		order := byteOrder(flags)
		octets := order.Uint16(rest[2:4])

		body := rest[submessageHeaderLen:]
		var payload []byte
		var remainder []byte
		if octets == 0 {
			// Last submessage in the message: consume the rest, per
			// spec.md §4.2's note that this may be 0 for the trailing
			// submessage on some dialects.
			payload = body
			remainder = nil
		} else {
			if int(octets) > len(body) {
				return nil, fmt.Errorf("rtps: submessage length %d exceeds remaining %d bytes", octets, len(body))
			}
			payload = body[:octets]
			remainder = body[octets:]
		}

		ctx.LittleEndian = little
		item, err := decodeBody(kind, flags, payload, ctx, order)
		if err != nil {
			return nil, err
		}
		m.Items = append(m.Items, item)

		// Update context carry for subsequent submessages.
		switch b := item.Body.(type) {
		case *InfoTS:
			if b.Valid {
				ts := Timestamp{Seconds: b.Seconds, Fraction: b.Fraction}
				ctx.Timestamp = &ts
			} else {
				ctx.Timestamp = nil
			}
		case *InfoDST:
			prefix := b.GuidPrefix
			ctx.DestPrefix = &prefix
		}

		rest = remainder
	}

	return m, nil
}

func decodeBody(kind Kind, flags byte, payload []byte, ctx Context, order binary.ByteOrder) (Item, error) {
	item := Item{Kind: kind, Context: ctx}

	if kind >= VendorSubmessageThreshold {
		item.Kind = KindUnknown
		item.Body = &Unknown{RawKind: kind, Flags: flags, Payload: payload}
		return item, nil
	}

	var (
		body Body
		err  error
	)
	switch kind {
	case KindData:
		body, err = decodeData(flags, payload, order)
	case KindDataFrag:
		body, err = decodeDataFrag(flags, payload, order)
	case KindHeartbeat:
		body, err = decodeHeartbeat(flags, payload, order)
	case KindAckNack:
		body, err = decodeAckNack(flags, payload, order)
	case KindGap:
		body, err = decodeGap(flags, payload, order)
	case KindNackFrag:
		body, err = decodeNackFrag(flags, payload, order)
	case KindHeartbeatFrag:
		body, err = decodeHeartbeatFrag(flags, payload, order)
	case KindInfoTS:
		body, err = decodeInfoTS(flags, payload, order)
	case KindInfoDST:
		body, err = decodeInfoDST(flags, payload, order)
	default:
		item.Kind = KindUnknown
		item.Body = &Unknown{RawKind: kind, Flags: flags, Payload: payload}
		return item, nil
	}
	if err != nil {
		return Item{}, err
	}
	item.Body = body
	return item, nil
}
