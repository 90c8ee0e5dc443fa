// Copyright 2024 The hdds Authors.

// Package rtps implements the RTPS 2.x wire header and submessage codec
// (spec.md §4.2): DATA, DATA_FRAG, HEARTBEAT, ACKNACK, GAP, NACK_FRAG,
// HEARTBEAT_FRAG, INFO_TS, and INFO_DST, plus graceful handling of
// vendor-specific magics and submessage ids (spec.md §4.7.4).
//
// Grounded on the teacher's internal/meshage.Message envelope (a typed
// Command/Body dispatch over a stable header) for the submessage-kind
// dispatch shape, adapted to RTPS's fixed binary layout instead of gob.
package rtps

import (
	"errors"
	"fmt"

	"github.com/hdds-io/hdds/pkg/guid"
)

// HeaderLen is the fixed RTPS message header size: 4-byte magic, 2-byte
// version, 2-byte vendor id, 12-byte GuidPrefix (spec.md §4.2).
const HeaderLen = 20

// Accepted magic numbers: the standard OMG magic and the RTPX variant used
// by some vendors (spec.md §4.7.4).
var (
	MagicRTPS = [4]byte{'R', 'T', 'P', 'S'}
	MagicRTPX = [4]byte{'R', 'T', 'P', 'X'}
)

var ErrBadMagic = errors.New("rtps: unrecognized magic")

// ProtocolVersion is the RTPS protocol version carried in every header.
type ProtocolVersion struct {
	Major, Minor uint8
}

// DefaultProtocolVersion is the RTPS 2.x version this codec targets.
var DefaultProtocolVersion = ProtocolVersion{Major: 2, Minor: 3}

// VendorId identifies the implementation that produced a message.
type VendorId [2]byte

// VendorIDHdds is this implementation's (unregistered, placeholder) vendor
// id.
var VendorIDHdds = VendorId{0x01, 0xFF}

// Header is the fixed-size prefix of every RTPS message.
type Header struct {
	Magic      [4]byte
	Version    ProtocolVersion
	Vendor     VendorId
	GuidPrefix guid.GuidPrefix
}

// IsVendorMagic reports whether this header used the RTPX variant magic
// rather than the standard RTPS magic.
func (h Header) IsVendorMagic() bool { return h.Magic == MagicRTPX }

// EncodeHeader serializes a Header to its fixed 20-byte wire form.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	copy(buf[0:4], h.Magic[:])
	buf[4] = h.Version.Major
	buf[5] = h.Version.Minor
	buf[6] = h.Vendor[0]
	buf[7] = h.Vendor[1]
	copy(buf[8:20], h.GuidPrefix[:])
	return buf
}

// DecodeHeader parses the fixed 20-byte header, accepting both RTPS and
// RTPX magics (spec.md §4.7.4). Callers that require the standard magic
// only should check Header.IsVendorMagic().
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderLen {
		return Header{}, nil, fmt.Errorf("rtps: header truncated: have %d bytes, need %d", len(buf), HeaderLen)
	}
	var h Header
	copy(h.Magic[:], buf[0:4])
	if h.Magic != MagicRTPS && h.Magic != MagicRTPX {
		return Header{}, nil, fmt.Errorf("%w: %q", ErrBadMagic, h.Magic)
	}
	h.Version = ProtocolVersion{Major: buf[4], Minor: buf[5]}
	h.Vendor = VendorId{buf[6], buf[7]}
	copy(h.GuidPrefix[:], buf[8:20])
	return h, buf[HeaderLen:], nil
}
