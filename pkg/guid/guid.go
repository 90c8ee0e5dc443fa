// Copyright 2024 The hdds Authors.

// Package guid implements the RTPS identifier family: GuidPrefix, EntityId,
// Guid, SequenceNumber, and FragmentNumber (spec.md §3). SequenceNumber
// bookkeeping follows the monotonic, never-reused-or-decreased discipline
// the same way meshage tracks per-source sequence IDs in its message
// envelope (internal/meshage/message.go), generalized here from "one
// counter per mesh node" to "one counter per writer".
package guid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// PrefixLen is the fixed GuidPrefix length in bytes (spec.md §3).
const PrefixLen = 12

// GuidPrefix is stable for the lifetime of a participant. It is composed of
// a vendor/host/app/instance layout but treated as opaque outside the
// generator, per spec.md §3.
type GuidPrefix [PrefixLen]byte

func (p GuidPrefix) String() string {
	return fmt.Sprintf("%x", [PrefixLen]byte(p))
}

// EntityKind is the 1-byte kind octet of an EntityId.
type EntityKind byte

// Reserved entity kinds for built-in SPDP/SEDP endpoints (RTPS 2.x
// well-known entity ids).
const (
	KindParticipant          EntityKind = 0x01
	KindWriterWithKey        EntityKind = 0x02
	KindReaderWithKey        EntityKind = 0x07
	KindWriterNoKey          EntityKind = 0x03
	KindReaderNoKey          EntityKind = 0x04
	KindWriterGroup          EntityKind = 0x08
	KindReaderGroup          EntityKind = 0x09
	KindBuiltinParticipant   EntityKind = 0xc1
	KindBuiltinPublications  EntityKind = 0xc2
	KindBuiltinSubscriptions EntityKind = 0xc7
)

// Well-known EntityIds for the SPDP/SEDP built-in endpoints.
var (
	EntityIDParticipant              = EntityId{0x00, 0x00, 0x01, byte(KindBuiltinParticipant)}
	EntityIDSEDPPublicationsWriter   = EntityId{0x00, 0x00, 0x03, byte(KindBuiltinPublications)}
	EntityIDSEDPPublicationsReader   = EntityId{0x00, 0x00, 0x03, byte(KindBuiltinSubscriptions)}
	EntityIDSEDPSubscriptionsWriter  = EntityId{0x00, 0x00, 0x04, byte(KindBuiltinPublications)}
	EntityIDSEDPSubscriptionsReader  = EntityId{0x00, 0x00, 0x04, byte(KindBuiltinSubscriptions)}
	EntityIDSPDPWriter               = EntityId{0x00, 0x01, 0x00, byte(KindBuiltinPublications)}
	EntityIDSPDPReader               = EntityId{0x00, 0x01, 0x00, byte(KindBuiltinSubscriptions)}
	EntityIDUnknown                  = EntityId{0x00, 0x00, 0x00, 0x00}
)

// EntityId is a 3-byte key plus a 1-byte kind (spec.md §3).
type EntityId [4]byte

func (e EntityId) String() string {
	return fmt.Sprintf("%x", [4]byte(e))
}

// Kind returns the entity kind octet.
func (e EntityId) Kind() EntityKind { return EntityKind(e[3]) }

// IsBuiltin reports whether this id identifies a well-known SPDP/SEDP
// built-in endpoint.
func (e EntityId) IsBuiltin() bool {
	return e.Kind()&0xc0 == 0xc0
}

// Guid is a GuidPrefix and EntityId pair, globally unique.
type Guid struct {
	Prefix   GuidPrefix
	EntityID EntityId
}

func (g Guid) String() string {
	return g.Prefix.String() + ":" + g.EntityID.String()
}

// Bytes returns the 16-byte wire representation (prefix then entity id).
func (g Guid) Bytes() [16]byte {
	var b [16]byte
	copy(b[:PrefixLen], g.Prefix[:])
	copy(b[PrefixLen:], g.EntityID[:])
	return b
}

// NewGuidPrefix generates a random GuidPrefix suitable for a new
// participant. Vendor/host/app/instance substructure is not meaningful to
// this core (spec.md §3 treats it as opaque outside the generator); the
// prefix is simply cryptographically random to guarantee global
// uniqueness without inter-process coordination.
func NewGuidPrefix() (GuidPrefix, error) {
	var p GuidPrefix
	if _, err := rand.Read(p[:]); err != nil {
		return p, fmt.Errorf("guid: generate prefix: %w", err)
	}
	return p, nil
}

// EntityAllocator hands out monotonically increasing application EntityIds
// for a single participant, never reusing one, matching the "application
// entities are allocated from a monotonic counter" rule in spec.md §3.
type EntityAllocator struct {
	next uint32
}

// Next returns the next EntityId of the given kind. The 3-byte key is the
// low 24 bits of a monotonic counter; wraparound is not handled (a
// participant allocating 2^24 entities has a more serious problem).
func (a *EntityAllocator) Next(kind EntityKind) EntityId {
	a.next++
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], a.next)
	return EntityId{key[1], key[2], key[3], byte(kind)}
}

// SequenceNumber is a 64-bit, strictly monotonic per-writer counter that
// starts at 1 (spec.md §3). MaxSequenceNumber is the saturation point from
// spec.md §8: a writer that reaches it must be recreated rather than wrap.
const MaxSequenceNumber SequenceNumber = ^SequenceNumber(0) - 1

// SequenceNumber is never reused or decreased once assigned by a writer.
type SequenceNumber uint64

// Next returns n+1, saturating at MaxSequenceNumber instead of wrapping, per
// the boundary behavior in spec.md §8.
func (n SequenceNumber) Next() SequenceNumber {
	if n >= MaxSequenceNumber {
		return MaxSequenceNumber
	}
	return n + 1
}

// Saturated reports whether the writer that owns this sequence must be
// recreated before assigning another sample.
func (n SequenceNumber) Saturated() bool { return n >= MaxSequenceNumber }

// FragmentNumber is 1-based within a DATA_FRAG group (spec.md §3).
type FragmentNumber uint32
