// Copyright 2024 The hdds Authors.

// Package transport delivers opaque byte buffers between a local socket and
// a remote Locator (spec.md §4.3). The primary transport is UDP with both
// unicast and multicast; TCP is a pluggable alternate that adds
// length-prefix framing and reconnection. Listener sockets are owned by the
// participant; receive buffers are drawn from a pooled allocator.
//
// Grounded on the teacher's internal/meshage node (net.ListenUDP/DialUDP
// broadcast-solicitation pattern) for the UDP side and internal/minitunnel
// (per-connection goroutine, framed reads) for the TCP side, generalized
// from meshage's single broadcast port to RTPS's per-domain port formula.
package transport

import (
	"fmt"
	"net"
)

// Kind identifies a Locator's underlying transport (spec.md §4.3).
type Kind byte

const (
	KindUDPv4 Kind = iota
	KindUDPv6
	KindTCP
	KindIntraProcess
)

func (k Kind) String() string {
	switch k {
	case KindUDPv4:
		return "udpv4"
	case KindUDPv6:
		return "udpv6"
	case KindTCP:
		return "tcp"
	case KindIntraProcess:
		return "intra"
	default:
		return "unknown"
	}
}

// Locator names an endpoint a Transport can send to or receive from
// (spec.md §4.3): transport kind, port, and a 16-byte address (IPv4
// addresses are stored in the last 4 bytes, per RTPS convention).
type Locator struct {
	Kind    Kind
	Port    uint16
	Address [16]byte
}

// NewLocator builds a Locator from a kind, port, and net.IP (v4 or v6).
func NewLocator(kind Kind, ip net.IP, port uint16) Locator {
	var addr [16]byte
	if v4 := ip.To4(); v4 != nil {
		copy(addr[12:], v4)
	} else if v6 := ip.To16(); v6 != nil {
		copy(addr[:], v6)
	}
	return Locator{Kind: kind, Port: port, Address: addr}
}

// IP returns the net.IP this locator addresses.
func (l Locator) IP() net.IP {
	if l.Kind == KindUDPv4 || (l.Kind == KindTCP && [12]byte(l.Address[:12]) == [12]byte{}) {
		return net.IP(l.Address[12:16])
	}
	return net.IP(l.Address[:])
}

// UDPAddr returns the *net.UDPAddr equivalent of this locator.
func (l Locator) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: l.IP(), Port: int(l.Port)}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s:%s:%d", l.Kind, l.IP(), l.Port)
}

// Domain port formula (spec.md §4.3): discovery multicast, discovery
// unicast, and user-traffic unicast ports derive from the domain id and
// participant index.
const (
	portBase             = 7400
	portDomainGain       = 250
	discoveryUnicastBase = 10
	userUnicastBase      = 11
	participantGain      = 2
)

// DiscoveryMulticastPort returns the well-known SPDP multicast port for a
// domain (spec.md §4.3: 7400 + 250*d).
func DiscoveryMulticastPort(domain uint16) uint16 {
	return portBase + portDomainGain*domain
}

// DiscoveryUnicastPort returns a participant's discovery unicast port
// (spec.md §4.3: 7410 + 250*d + 2*participant_index).
func DiscoveryUnicastPort(domain uint16, participantIndex uint16) uint16 {
	return portBase + discoveryUnicastBase + portDomainGain*domain + participantGain*participantIndex
}

// UserUnicastPort returns a participant's user-traffic unicast port
// (spec.md §4.3: 7411 + 250*d + 2*participant_index).
func UserUnicastPort(domain uint16, participantIndex uint16) uint16 {
	return portBase + userUnicastBase + portDomainGain*domain + participantGain*participantIndex
}

// DefaultSPDPMulticastGroup is the standard OMG SPDP multicast address.
var DefaultSPDPMulticastGroup = net.IPv4(239, 255, 0, 1)
