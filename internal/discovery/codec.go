// Copyright 2024 The hdds Authors.

package discovery

import (
	"strings"
	"time"

	"github.com/hdds-io/hdds/internal/cdr"
	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/pkg/guid"
)

// EncodeParticipantInfo serializes an SPDP announcement as a PL_CDR
// parameter list (spec.md §4.7.1).
func EncodeParticipantInfo(p *ParticipantInfo) []byte {
	w := cdr.NewWriter(cdr.PL_CDR_LE)

	w.WriteParameter(pidParticipantGUID, p.GuidPrefix[:])
	w.WriteParameter(pidProtocolVersion, []byte{p.ProtocolVersion.Major, p.ProtocolVersion.Minor})
	w.WriteParameter(pidVendorID, p.VendorID[:])
	w.WriteParameter(pidDomainID, encodeU32(p.DomainID))
	for _, l := range p.MetatrafficUnicastLocators {
		w.WriteParameter(pidMetatrafficUnicastLocator, encodeLocator(l))
	}
	for _, l := range p.MetatrafficMulticastLocators {
		w.WriteParameter(pidMetatrafficMulticastLocator, encodeLocator(l))
	}
	for _, l := range p.DefaultUnicastLocators {
		w.WriteParameter(pidDefaultUnicastLocator, encodeLocator(l))
	}
	for _, l := range p.DefaultMulticastLocators {
		w.WriteParameter(pidDefaultMulticastLocator, encodeLocator(l))
	}
	w.WriteParameter(pidParticipantLeaseDuration, encodeU32(uint32(p.LeaseDuration/time.Millisecond)))
	if len(p.IdentityToken) > 0 {
		w.WriteParameter(pidIdentityToken, p.IdentityToken)
	}
	if len(p.UserData) > 0 {
		w.WriteParameter(pidUserData, p.UserData)
	}
	for id, v := range p.VendorParams {
		w.WriteParameter(id, v)
	}
	w.WriteSentinel()
	return w.Bytes()
}

// DecodeParticipantInfo parses an SPDP payload into a ParticipantInfo.
// Unrecognized parameters are ignored except for vendor-specific ones
// (bit 15 set), which are preserved in VendorParams (spec.md §4.7.4).
func DecodeParticipantInfo(raw []byte) (*ParticipantInfo, error) {
	r, err := cdr.NewReader(raw)
	if err != nil {
		return nil, err
	}
	params, err := r.ReadParameterList()
	if err != nil {
		return nil, err
	}

	p := &ParticipantInfo{VendorParams: make(map[uint16][]byte)}
	for _, param := range params {
		switch param.ID {
		case pidParticipantGUID:
			copy(p.GuidPrefix[:], param.Value)
		case pidProtocolVersion:
			if len(param.Value) >= 2 {
				p.ProtocolVersion = rtps.ProtocolVersion{Major: param.Value[0], Minor: param.Value[1]}
			}
		case pidVendorID:
			if len(param.Value) >= 2 {
				copy(p.VendorID[:], param.Value)
			}
		case pidDomainID:
			p.DomainID = decodeU32(param.Value)
		case pidMetatrafficUnicastLocator:
			p.MetatrafficUnicastLocators = append(p.MetatrafficUnicastLocators, decodeLocator(param.Value))
		case pidMetatrafficMulticastLocator:
			p.MetatrafficMulticastLocators = append(p.MetatrafficMulticastLocators, decodeLocator(param.Value))
		case pidDefaultUnicastLocator:
			p.DefaultUnicastLocators = append(p.DefaultUnicastLocators, decodeLocator(param.Value))
		case pidDefaultMulticastLocator:
			p.DefaultMulticastLocators = append(p.DefaultMulticastLocators, decodeLocator(param.Value))
		case pidParticipantLeaseDuration:
			p.LeaseDuration = time.Duration(decodeU32(param.Value)) * time.Millisecond
		case pidIdentityToken:
			p.IdentityToken = append([]byte(nil), param.Value...)
		case pidUserData:
			p.UserData = append([]byte(nil), param.Value...)
		default:
			if param.IsVendorSpecific() {
				p.VendorParams[param.ID] = append([]byte(nil), param.Value...)
			}
		}
	}
	return p, nil
}

// EncodeEndpointInfo serializes a SEDP announcement as a PL_CDR parameter
// list (spec.md §4.7.2).
func EncodeEndpointInfo(e *EndpointInfo) []byte {
	w := cdr.NewWriter(cdr.PL_CDR_LE)

	guidBytes := e.Guid.Bytes()
	w.WriteParameter(pidEndpointGUID, guidBytes[:])
	w.WriteParameter(pidTopicName, []byte(e.Topic))
	w.WriteParameter(pidTypeName, []byte(e.TypeName))
	w.WriteParameter(pidReliability, []byte{byte(e.Policy.Reliability)})
	w.WriteParameter(pidDurability, []byte{byte(e.Policy.Durability)})
	w.WriteParameter(pidHistory, encodeHistory(e.Policy))
	w.WriteParameter(pidDeadline, encodeDuration(e.Policy.Deadline))
	w.WriteParameter(pidLifespan, encodeDuration(e.Policy.Lifespan))
	w.WriteParameter(pidLiveliness, encodeLiveliness(e.Policy.Liveliness))
	w.WriteParameter(pidOwnership, encodeOwnership(e.Policy.Ownership))
	for _, part := range e.Policy.Partition {
		w.WriteParameter(pidPartition, []byte(part))
	}
	for _, l := range e.UnicastLocators {
		w.WriteParameter(pidUnicastLocator, encodeLocator(l))
	}
	for _, l := range e.MulticastLocators {
		w.WriteParameter(pidMulticastLocator, encodeLocator(l))
	}
	for id, v := range e.VendorParams {
		w.WriteParameter(id, v)
	}
	w.WriteSentinel()
	return w.Bytes()
}

// DecodeEndpointInfo parses a SEDP payload into an EndpointInfo. isWriter
// comes from the builtin entity id the DATA arrived on (spec.md §4.7.2),
// not from the payload itself.
func DecodeEndpointInfo(raw []byte, isWriter bool) (*EndpointInfo, error) {
	r, err := cdr.NewReader(raw)
	if err != nil {
		return nil, err
	}
	params, err := r.ReadParameterList()
	if err != nil {
		return nil, err
	}

	e := &EndpointInfo{IsWriter: isWriter, VendorParams: make(map[uint16][]byte)}
	for _, param := range params {
		switch param.ID {
		case pidEndpointGUID:
			if len(param.Value) >= 16 {
				copy(e.Guid.Prefix[:], param.Value[:guid.PrefixLen])
				copy(e.Guid.EntityID[:], param.Value[guid.PrefixLen:16])
			}
		case pidTopicName:
			e.Topic = strings.TrimRight(string(param.Value), "\x00")
		case pidTypeName:
			e.TypeName = strings.TrimRight(string(param.Value), "\x00")
		case pidReliability:
			if len(param.Value) >= 1 {
				e.Policy.Reliability = qos.ReliabilityKind(param.Value[0])
			}
		case pidDurability:
			if len(param.Value) >= 1 {
				e.Policy.Durability = qos.DurabilityKind(param.Value[0])
			}
		case pidHistory:
			decodeHistory(param.Value, &e.Policy)
		case pidDeadline:
			e.Policy.Deadline = decodeDuration(param.Value)
		case pidLifespan:
			e.Policy.Lifespan = decodeDuration(param.Value)
		case pidLiveliness:
			e.Policy.Liveliness = decodeLiveliness(param.Value)
		case pidOwnership:
			e.Policy.Ownership = decodeOwnership(param.Value)
		case pidPartition:
			e.Policy.Partition = append(e.Policy.Partition, strings.TrimRight(string(param.Value), "\x00"))
		case pidUnicastLocator:
			e.UnicastLocators = append(e.UnicastLocators, decodeLocator(param.Value))
		case pidMulticastLocator:
			e.MulticastLocators = append(e.MulticastLocators, decodeLocator(param.Value))
		default:
			if param.IsVendorSpecific() {
				e.VendorParams[param.ID] = append([]byte(nil), param.Value...)
			}
		}
	}
	return e, nil
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeU32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeDuration(d time.Duration) []byte {
	if d == qos.Infinite {
		return encodeU32(0xFFFFFFFF)
	}
	return encodeU32(uint32(d / time.Millisecond))
}

func decodeDuration(b []byte) time.Duration {
	v := decodeU32(b)
	if v == 0xFFFFFFFF {
		return qos.Infinite
	}
	return time.Duration(v) * time.Millisecond
}

func encodeHistory(p qos.Policy) []byte {
	return append([]byte{byte(p.History)}, encodeU32(uint32(p.HistoryDepth))...)
}

func decodeHistory(b []byte, p *qos.Policy) {
	if len(b) < 1 {
		return
	}
	p.History = qos.HistoryKind(b[0])
	if len(b) >= 5 {
		p.HistoryDepth = int(decodeU32(b[1:5]))
	}
}

func encodeLiveliness(l qos.Liveliness) []byte {
	return append([]byte{byte(l.Kind)}, encodeDuration(l.Lease)...)
}

func decodeLiveliness(b []byte) qos.Liveliness {
	if len(b) < 1 {
		return qos.Liveliness{Lease: qos.Infinite}
	}
	l := qos.Liveliness{Kind: qos.LivelinessKind(b[0])}
	if len(b) >= 5 {
		l.Lease = decodeDuration(b[1:5])
	} else {
		l.Lease = qos.Infinite
	}
	return l
}

func encodeOwnership(o qos.Ownership) []byte {
	buf := []byte{byte(o.Kind)}
	return append(buf, encodeU32(uint32(o.Strength))...)
}

func decodeOwnership(b []byte) qos.Ownership {
	if len(b) < 1 {
		return qos.Ownership{}
	}
	o := qos.Ownership{Kind: qos.OwnershipKind(b[0])}
	if len(b) >= 5 {
		o.Strength = int32(decodeU32(b[1:5]))
	}
	return o
}

func encodeLocator(l transport.Locator) []byte {
	buf := make([]byte, 0, 19)
	buf = append(buf, byte(l.Kind))
	buf = append(buf, byte(l.Port), byte(l.Port>>8))
	buf = append(buf, l.Address[:]...)
	return buf
}

func decodeLocator(b []byte) transport.Locator {
	if len(b) < 19 {
		return transport.Locator{}
	}
	l := transport.Locator{Kind: transport.Kind(b[0]), Port: uint16(b[1]) | uint16(b[2])<<8}
	copy(l.Address[:], b[3:19])
	return l
}
