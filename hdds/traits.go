// Copyright 2024 The hdds Authors.

package hdds

import "time"

// SampleStore is the persistence collaborator for Durability values of
// Transient or Persistent (spec.md §6.4). The core never opens a file
// itself; it only calls these methods.
type SampleStore interface {
	Save(topic, typeName string, payload []byte, timestamp time.Time, sequence uint64, sourceGuid [16]byte) error
	Load(topic string) ([]StoredSample, error)
	QueryRange(topic string, start, end time.Time) ([]StoredSample, error)
	ApplyRetentionPolicy(topic string, policy RetentionPolicy) error
	Count(topic string) (int, error)
	Clear(topic string) error
}

// StoredSample is one record round-tripped through a SampleStore.
type StoredSample struct {
	Topic      string
	TypeName   string
	Payload    []byte
	Timestamp  time.Time
	Sequence   uint64
	SourceGuid [16]byte
}

// RetentionPolicy bounds how much a SampleStore keeps per topic.
type RetentionPolicy struct {
	KeepCount int
	MaxAge    time.Duration
	MaxBytes  int64
}

// AuthN is the security plugin hook for participant/peer authentication.
// A nil AuthN means security is disabled and every peer is trusted.
type AuthN interface {
	Authenticate(peerIdentityToken []byte) (identityHandle interface{}, ok bool)
}

// AccessControl is the security plugin hook consulted by the discovery
// matcher (spec.md §4.7.3 rule 5, §7 SecurityDenied).
type AccessControl interface {
	AllowMatch(localGuid, remoteGuid [16]byte, topic string) bool
}

// Crypto is the security plugin hook for payload protection. A nil Crypto
// means samples are sent and received in the clear.
type Crypto interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// TelemetrySink receives periodic counter snapshots from the optional
// exporter thread (spec.md §5). hdds-telemetry-otlp and hdds-influx-sink
// style backends implement this; the core ships no implementation.
type TelemetrySink interface {
	Export(counters map[string]uint64)
}

// GroupCoordinator is the hook PRESENTATION=Group coherent access defers
// to (spec.md §4.9's "the core exposes the hooks only"). The core never
// implements grouping itself.
type GroupCoordinator interface {
	BeginCoherentSet(groupID string)
	EndCoherentSet(groupID string)
}
