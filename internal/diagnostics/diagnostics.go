// Copyright 2024 The hdds Authors.

// Package diagnostics implements the optional live-capture sniffer enabled
// by HDDS_LOG_UDP=1 (spec.md §4.3/§4.9): it decodes the UDP/IPv4 or
// UDP/IPv6 envelope around RTPS traffic for human-readable diagnostic
// dumps, entirely off the hot dispatch path.
//
// Grounded on the teacher's internal/bridge/ipmac.go snooper: a
// gopacket.NewDecodingLayerParser built once and reused across packets,
// driven by a pcap.Handle opened with pcap.OpenLive (internal/bridge
// /bridges.go), applied here to our own RTPS wire format instead of
// ARP/ICMPv6 MAC/IP learning.
package diagnostics

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/hdds-io/hdds/pkg/hlog"
)

const snapLen = 65535

// Sniffer decodes raw UDP/IP frames captured off an interface, extracting
// the RTPS payload for logging. It never participates in the data path:
// what Run reports is advisory only.
type Sniffer struct {
	handle *pcap.Handle
	done   chan struct{}
}

// NewSniffer opens iface in promiscuous mode for live capture. Intended
// only for diagnostic use (HDDS_LOG_UDP=1); never opened by default.
func NewSniffer(iface string) (*Sniffer, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, time.Second)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open live capture on %s: %w", iface, err)
	}
	// RTPS has no dedicated IANA well-known port filter beyond the domain
	// formula (spec.md §4.3), so this sniffer has no BPF filter installed;
	// Run passes every decoded UDP datagram on, whatever its ports.
	return &Sniffer{handle: handle, done: make(chan struct{})}, nil
}

// Envelope is the decoded UDP/IP wrapper around one captured RTPS packet.
type Envelope struct {
	SrcIP, DstIP     string
	SrcPort, DstPort uint16
	Payload          []byte
	CapturedAt       time.Time
}

// Run decodes packets from the capture handle until Close is called,
// invoking onPacket for each UDP datagram observed. Errors from individual
// malformed packets are logged and skipped, never fatal to the loop,
// matching the teacher's snooper's "log and continue" discipline.
func (s *Sniffer) Run(onPacket func(Envelope)) {
	var (
		eth layers.Ethernet
		ip4 layers.IPv4
		ip6 layers.IPv6
		udp layers.UDP
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&eth, &ip4, &ip6, &udp,
	)
	decoded := []gopacket.LayerType{}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		data, _, err := s.handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		} else if err != nil {
			select {
			case <-s.done:
			default:
				hlog.Debug("diagnostics: read packet data: %v", err)
			}
			return
		}

		if err := parser.DecodeLayers(data, &decoded); err != nil {
			if _, ok := err.(gopacket.UnsupportedLayerType); !ok {
				hlog.Debug("diagnostics: decode packet: %v", err)
				continue
			}
		}

		env := Envelope{CapturedAt: time.Now()}
		sawUDP := false
		for _, lt := range decoded {
			switch lt {
			case layers.LayerTypeIPv4:
				env.SrcIP, env.DstIP = ip4.SrcIP.String(), ip4.DstIP.String()
			case layers.LayerTypeIPv6:
				env.SrcIP, env.DstIP = ip6.SrcIP.String(), ip6.DstIP.String()
			case layers.LayerTypeUDP:
				env.SrcPort = uint16(udp.SrcPort)
				env.DstPort = uint16(udp.DstPort)
				env.Payload = udp.Payload
				sawUDP = true
			}
		}
		if sawUDP {
			onPacket(env)
		}
	}
}

// Close stops Run's loop and releases the capture handle.
func (s *Sniffer) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.handle.Close()
}

// LogEnvelope writes a one-line diagnostic summary of a captured RTPS
// packet, the HDDS_LOG_UDP=1 output format.
func LogEnvelope(env Envelope) {
	hlog.Debug("udp %s:%d -> %s:%d (%d bytes)", env.SrcIP, env.SrcPort, env.DstIP, env.DstPort, len(env.Payload))
}
