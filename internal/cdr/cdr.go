// Copyright 2024 The hdds Authors.

// Package cdr implements Common Data Representation encode/decode for the
// plain CDR1/CDR2 (LE/BE) and parameter-list (PL_CDR) encodings used to
// serialize RTPS payloads and built-in discovery tuples (spec.md §4.1).
//
// There is no ecosystem CDR codec in the retrieval pack to build on (the
// closest analog, go-xdr, implements RFC 1014 XDR: always 4-byte aligned,
// always big-endian — neither holds for CDR), so this package is hand
// rolled against the wire contract in spec.md §4.1.
package cdr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encapsulation identifies one of the CDR variants via the 2-byte prefix
// that heads every serialized sample, followed by a 2-byte options field
// (spec.md §4.1).
type Encapsulation uint16

const (
	CDR_BE    Encapsulation = 0x0000
	CDR_LE    Encapsulation = 0x0001
	PL_CDR_BE Encapsulation = 0x0002
	PL_CDR_LE Encapsulation = 0x0003
	CDR2_BE   Encapsulation = 0x0010
	CDR2_LE   Encapsulation = 0x0011
	PL_CDR2_BE Encapsulation = 0x0012
	PL_CDR2_LE Encapsulation = 0x0013
)

// LittleEndian reports whether this encapsulation uses little-endian byte
// order.
func (e Encapsulation) LittleEndian() bool {
	switch e {
	case CDR_LE, PL_CDR_LE, CDR2_LE, PL_CDR2_LE:
		return true
	default:
		return false
	}
}

// IsParameterList reports whether this encapsulation is one of the
// PL_CDR(2) variants, i.e. the payload is a parameter list rather than a
// plain structure.
func (e Encapsulation) IsParameterList() bool {
	switch e {
	case PL_CDR_BE, PL_CDR_LE, PL_CDR2_BE, PL_CDR2_LE:
		return true
	default:
		return false
	}
}

func (e Encapsulation) byteOrder() binary.ByteOrder {
	if e.LittleEndian() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Errors returned by Encode/Decode (spec.md §4.1).
var (
	ErrBufferTooSmall     = errors.New("cdr: buffer too small")
	ErrTruncated          = errors.New("cdr: truncated input")
	ErrInvalidEncoding    = errors.New("cdr: invalid encapsulation")
	ErrAlignmentViolation = errors.New("cdr: alignment violation")
)

// headerLen is the 2-byte encapsulation id plus 2-byte options field that
// every serialized sample begins with; it is also the alignment origin for
// all subsequent primitives (spec.md §4.1).
const headerLen = 4

// DecodeEncapsulation reads the 4-byte header from buf and returns the
// encapsulation kind and the remaining payload.
func DecodeEncapsulation(buf []byte) (Encapsulation, []byte, error) {
	if len(buf) < headerLen {
		return 0, nil, ErrTruncated
	}
	enc := Encapsulation(binary.BigEndian.Uint16(buf[0:2]))
	switch enc {
	case CDR_BE, CDR_LE, PL_CDR_BE, PL_CDR_LE, CDR2_BE, CDR2_LE, PL_CDR2_BE, PL_CDR2_LE:
	default:
		return 0, nil, fmt.Errorf("%w: %#04x", ErrInvalidEncoding, uint16(enc))
	}
	return enc, buf[headerLen:], nil
}

// EncodeEncapsulation writes the 4-byte header (options field is always
// zero; no option bits are defined by this implementation).
func EncodeEncapsulation(enc Encapsulation) []byte {
	var b [headerLen]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(enc))
	return b[:]
}
