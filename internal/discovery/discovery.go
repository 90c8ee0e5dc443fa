// Copyright 2024 The hdds Authors.

// Package discovery implements SPDP participant discovery and SEDP
// endpoint discovery (spec.md §4.7): periodic announcement, a read-mostly
// registry of remote participants/endpoints, QoS/topic/partition/security
// matching, and lease-based eviction.
package discovery

import (
	"time"

	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/internal/typedesc"
	"github.com/hdds-io/hdds/pkg/guid"
)

// Defaults from spec.md §4.7.1.
const (
	DefaultSPDPPeriod  = 3 * time.Second
	DefaultLeaseDuration = 30 * time.Second
	// DefaultLeaseSweepPeriod is the lease tracker's fixed sweep rate,
	// grounded on the teacher's internal/ron.Server.clientReaper 1 Hz loop.
	DefaultLeaseSweepPeriod = time.Second
)

// ParticipantInfo is one remote participant's SPDP announcement (spec.md
// §4.7.1).
type ParticipantInfo struct {
	GuidPrefix guid.GuidPrefix

	ProtocolVersion rtps.ProtocolVersion
	VendorID        rtps.VendorId
	DomainID        uint32

	MetatrafficUnicastLocators   []transport.Locator
	MetatrafficMulticastLocators []transport.Locator
	DefaultUnicastLocators       []transport.Locator
	DefaultMulticastLocators     []transport.Locator

	LeaseDuration time.Duration
	IdentityToken []byte // optional, present only when security is enabled
	UserData      []byte // optional

	// VendorParams preserves any vendor-specific parameter (PID bit 15
	// set) verbatim rather than discarding it (spec.md §4.7.4).
	VendorParams map[uint16][]byte

	LastSeen time.Time
}

// EndpointInfo is one remote endpoint's SEDP announcement (spec.md §4.7.2).
type EndpointInfo struct {
	Guid     guid.Guid
	IsWriter bool

	Topic      string
	TypeName   string
	TypeObject *typedesc.TypeObject // optional, absent for legacy-name-only peers

	Policy qos.Policy

	UnicastLocators   []transport.Locator
	MulticastLocators []transport.Locator

	VendorParams map[uint16][]byte

	LastSeen time.Time
}
