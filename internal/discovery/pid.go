// Copyright 2024 The hdds Authors.

package discovery

// Parameter ids used by SPDP/SEDP payloads (spec.md §4.7.1/§4.7.2). These
// are this implementation's own assignments, not the OMG-registered ones;
// internal consistency between encode and decode is all that matters for a
// closed wire format between hdds participants.
const (
	pidParticipantGUID               uint16 = 0x0010
	pidProtocolVersion                uint16 = 0x0011
	pidVendorID                       uint16 = 0x0012
	pidDomainID                       uint16 = 0x0013
	pidMetatrafficUnicastLocator     uint16 = 0x0014
	pidMetatrafficMulticastLocator   uint16 = 0x0015
	pidDefaultUnicastLocator         uint16 = 0x0016
	pidDefaultMulticastLocator       uint16 = 0x0017
	pidParticipantLeaseDuration      uint16 = 0x0018
	pidIdentityToken                 uint16 = 0x0019
	pidUserData                      uint16 = 0x001A

	pidEndpointGUID       uint16 = 0x0020
	pidTopicName          uint16 = 0x0021
	pidTypeName           uint16 = 0x0022
	pidTypeObject         uint16 = 0x0023
	pidReliability        uint16 = 0x0024
	pidDurability         uint16 = 0x0025
	pidHistory            uint16 = 0x0026
	pidDeadline           uint16 = 0x0027
	pidLiveliness         uint16 = 0x0028
	pidLifespan           uint16 = 0x0029
	pidOwnership          uint16 = 0x002A
	pidUnicastLocator     uint16 = 0x002B
	pidMulticastLocator   uint16 = 0x002C
	pidPartition          uint16 = 0x002D
	pidPresentation       uint16 = 0x002E
	pidDestinationOrder   uint16 = 0x002F
	pidResourceLimits     uint16 = 0x0030
	pidTimeBasedFilter    uint16 = 0x0031
	pidTransportPriority  uint16 = 0x0032
	pidLatencyBudget      uint16 = 0x0033
	pidMaxBlockingTime    uint16 = 0x0034
)
