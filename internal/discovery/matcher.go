// Copyright 2024 The hdds Authors.

package discovery

import (
	"strings"

	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/typedesc"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// AccessControl is the trait-shaped collaborator consulted for matching
// rule 5 (spec.md §4.7.3). A nil AccessControl allows every pair, which is
// the correct behavior when security is disabled.
type AccessControl interface {
	AllowMatch(local, remote guid.Guid, topic string) bool
}

// LocalEndpoint is the subset of a local DataWriter/DataReader's identity
// the Matcher needs; it is satisfied by the not-yet-built entity layer.
type LocalEndpoint struct {
	Guid       guid.Guid
	IsWriter   bool
	Topic      string
	TypeName   string
	TypeObject *typedesc.TypeObject
	Policy     qos.Policy
}

// MatchResult reports the outcome of evaluating one (local, remote) pair.
type MatchResult struct {
	Matched         bool
	Incompatibility []qos.Incompatibility // non-nil only when rule 3 failed
	SecurityDenied  bool
}

// Matcher evaluates the 5 matching rules of spec.md §4.7.3 between a local
// endpoint and a remote EndpointInfo discovered via SEDP.
type Matcher struct {
	Security AccessControl // optional
}

// NewMatcher returns a Matcher with no access control (security disabled).
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match evaluates all 5 rules in order, short-circuiting on the first
// failure, and logs a structured one-line entry for a QoS-incompatible or
// SecurityDenied non-match (spec.md §5's supplemented logging detail).
func (m *Matcher) Match(local LocalEndpoint, remote *EndpointInfo) MatchResult {
	if local.IsWriter == remote.IsWriter {
		return MatchResult{}
	}

	if !topicMatch(local, remote) {
		return MatchResult{}
	}

	if !typeMatch(local, remote) {
		return MatchResult{}
	}

	var offered, requested qos.Policy
	if local.IsWriter {
		offered, requested = local.Policy, remote.Policy
	} else {
		offered, requested = remote.Policy, local.Policy
	}
	ok, bad := qos.Compatible(offered, requested)
	if !ok {
		hlog.Warn("discovery: qos incompatible local=%s remote=%s topic=%s reasons=%v",
			local.Guid, remote.Guid, local.Topic, bad)
		return MatchResult{Incompatibility: bad}
	}

	if m.Security != nil && !m.Security.AllowMatch(local.Guid, remote.Guid, local.Topic) {
		hlog.Warn("discovery: security denied local=%s remote=%s topic=%s",
			local.Guid, remote.Guid, local.Topic)
		return MatchResult{SecurityDenied: true}
	}

	return MatchResult{Matched: true}
}

// topicMatch implements rule 1, including MQTT-style `+`/`#` wildcards on
// the reader side: `+` matches exactly one `/`-delimited level, `#` (only
// valid as the final level) matches the remainder of the name.
func topicMatch(local LocalEndpoint, remote *EndpointInfo) bool {
	readerTopic, writerTopic := local.Topic, remote.Topic
	if local.IsWriter {
		readerTopic, writerTopic = remote.Topic, local.Topic
	}
	if readerTopic == writerTopic {
		return true
	}
	return topicWildcardMatch(readerTopic, writerTopic)
}

func topicWildcardMatch(pattern, name string) bool {
	pLevels := strings.Split(pattern, "/")
	nLevels := strings.Split(name, "/")

	for i, p := range pLevels {
		if p == "#" {
			return i == len(pLevels)-1
		}
		if i >= len(nLevels) {
			return false
		}
		if p == "+" {
			continue
		}
		if p != nLevels[i] {
			return false
		}
	}
	return len(pLevels) == len(nLevels)
}

// typeMatch implements rule 2: type ids equal (via typedesc.TypeID over the
// declared name), OR XTypes assignability writer->reader when both sides
// carry a TypeObject, OR a legacy bare type-name match.
func typeMatch(local LocalEndpoint, remote *EndpointInfo) bool {
	if local.TypeName == remote.TypeName {
		return true
	}
	if typedesc.TypeID(local.TypeName) == typedesc.TypeID(remote.TypeName) {
		return true
	}
	if local.TypeObject != nil && remote.TypeObject != nil {
		if local.IsWriter {
			return typedesc.Assignable(local.TypeObject, remote.TypeObject)
		}
		return typedesc.Assignable(remote.TypeObject, local.TypeObject)
	}
	return false
}
