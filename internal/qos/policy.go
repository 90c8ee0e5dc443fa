// Copyright 2024 The hdds Authors.

// Package qos implements the QoS policy struct and the OMG-style
// compatibility matrix (spec.md §4.9): writer policies must be "at least
// as strong as" reader policies along a fixed, policy-specific ordering.
package qos

import "time"

// ReliabilityKind selects best-effort or reliable delivery.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// DurabilityKind controls whether and how a writer retains samples for
// late-joining readers.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient // requires an external SampleStore (spec.md §4.9)
	Persistent
)

// HistoryKind selects how many samples per instance a cache retains.
type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

// OwnershipKind controls whether multiple writers may publish the same
// instance concurrently.
type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

// LivelinessKind controls how a writer asserts it is still alive.
type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// PresentationScope governs the granularity at which PRESENTATION ordering
// and coherency apply.
type PresentationScope int

const (
	InstancePresentation PresentationScope = iota
	TopicPresentation
	GroupPresentation
)

// DestinationOrderKind picks the tiebreak rule for concurrent/coherent
// delivery.
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

// Infinite represents an "infinite"/unbounded duration policy value.
const Infinite = time.Duration(-1)

// ResourceLimits bounds a history cache's memory footprint.
type ResourceLimits struct {
	MaxSamples           int // <=0 means unbounded
	MaxInstances         int
	MaxSamplesPerInstance int
}

// Unbounded is the default ResourceLimits: no caps.
var Unbounded = ResourceLimits{}

// Presentation groups the PRESENTATION policy's three sub-fields.
type Presentation struct {
	Scope    PresentationScope
	Coherent bool
	Ordered  bool
}

// Liveliness groups LIVELINESS's kind and lease duration.
type Liveliness struct {
	Kind  LivelinessKind
	Lease time.Duration // Infinite means no lease-based liveliness check
}

// Ownership groups OWNERSHIP's kind and (for Exclusive) strength.
type Ownership struct {
	Kind     OwnershipKind
	Strength int32
}

// Policy is the full QoS profile attached to a Topic, DataWriter, or
// DataReader (spec.md §4.9). Default returns the documented default
// profile: BestEffort/Volatile/KeepLast(1)/Shared/Automatic/Instance with
// infinite deadline, lifespan and liveliness lease. The zero value has the
// same kinds, but its durations are 0 rather than Infinite.
type Policy struct {
	Reliability       ReliabilityKind
	MaxBlockingTime   time.Duration // only meaningful when Reliability==Reliable
	Durability        DurabilityKind
	History           HistoryKind
	HistoryDepth      int // meaningful only when History==KeepLast; default 1
	ResourceLimits    ResourceLimits
	Deadline          time.Duration // Infinite means no deadline
	Lifespan          time.Duration // Infinite means samples never expire
	Liveliness        Liveliness
	Ownership         Ownership
	Partition         []string
	Presentation      Presentation
	DestinationOrder  DestinationOrderKind
	LatencyBudget     time.Duration
	TimeBasedFilter   time.Duration
	TransportPriority int32
}

// Default returns the documented default Policy.
func Default() Policy {
	return Policy{
		Reliability:     BestEffort,
		Durability:      Volatile,
		History:         KeepLast,
		HistoryDepth:    1,
		Deadline:        Infinite,
		Lifespan:        Infinite,
		Liveliness:      Liveliness{Kind: Automatic, Lease: Infinite},
		Ownership:       Ownership{Kind: Shared},
		Presentation:    Presentation{Scope: InstancePresentation},
		DestinationOrder: ByReceptionTimestamp,
	}
}

// EffectiveHistoryDepth returns the number of samples per instance this
// policy's HISTORY setting retains: HistoryDepth for KeepLast (at least 1),
// or -1 for KeepAll (bounded only by ResourceLimits).
func (p Policy) EffectiveHistoryDepth() int {
	if p.History == KeepAll {
		return -1
	}
	if p.HistoryDepth <= 0 {
		return 1
	}
	return p.HistoryDepth
}
