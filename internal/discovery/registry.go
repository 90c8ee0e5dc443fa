// Copyright 2024 The hdds Authors.

package discovery

import (
	"sync"

	"github.com/hdds-io/hdds/pkg/guid"
)

// endpointKey qualifies an EndpointInfo by its owning participant, since
// SEDP only carries the bare entity id's prefix through its own Guid field.
type endpointKey = guid.Guid

// Registry is the read-mostly discovery database (spec.md §4.7, §5): known
// remote participants and endpoints, guarded by a single RWMutex so
// lookups during matching take only a read lock.
type Registry struct {
	mu           sync.RWMutex
	participants map[guid.GuidPrefix]*ParticipantInfo
	endpoints    map[endpointKey]*EndpointInfo
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[guid.GuidPrefix]*ParticipantInfo),
		endpoints:    make(map[endpointKey]*EndpointInfo),
	}
}

// UpsertParticipant records or refreshes a participant's SPDP announcement,
// reporting whether this participant was previously unknown (spec.md
// §4.7.1's "on first reception... send an extra unicast SPDP").
func (reg *Registry) UpsertParticipant(p *ParticipantInfo) (isNew bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, known := reg.participants[p.GuidPrefix]
	reg.participants[p.GuidPrefix] = p
	return !known
}

// Participant returns the known info for a remote participant.
func (reg *Registry) Participant(prefix guid.GuidPrefix) (*ParticipantInfo, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	p, ok := reg.participants[prefix]
	return p, ok
}

// Participants returns a snapshot of every known remote participant.
func (reg *Registry) Participants() []*ParticipantInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*ParticipantInfo, 0, len(reg.participants))
	for _, p := range reg.participants {
		out = append(out, p)
	}
	return out
}

// RemoveParticipant evicts a participant and every endpoint it owns,
// returning the removed endpoints so the caller can cascade unmatch
// (spec.md §4.7.1's lease-expiry cascade).
func (reg *Registry) RemoveParticipant(prefix guid.GuidPrefix) []*EndpointInfo {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.participants, prefix)

	var removed []*EndpointInfo
	for key, e := range reg.endpoints {
		if key.Prefix == prefix {
			removed = append(removed, e)
			delete(reg.endpoints, key)
		}
	}
	return removed
}

// UpsertEndpoint records or refreshes a remote endpoint's SEDP
// announcement.
func (reg *Registry) UpsertEndpoint(e *EndpointInfo) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.endpoints[e.Guid] = e
}

// Endpoint returns the known info for a remote endpoint.
func (reg *Registry) Endpoint(g guid.Guid) (*EndpointInfo, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.endpoints[g]
	return e, ok
}

// RemoveEndpoint evicts one endpoint directly (a SEDP dispose, distinct
// from the whole-participant lease-expiry cascade).
func (reg *Registry) RemoveEndpoint(g guid.Guid) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.endpoints, g)
}

// EndpointsByTopic returns every known remote endpoint on the given topic,
// a snapshot copy safe to range over without holding the lock.
func (reg *Registry) EndpointsByTopic(topic string) []*EndpointInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var out []*EndpointInfo
	for _, e := range reg.endpoints {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
