// Copyright 2024 The hdds Authors.

// Package hdds is the public Entity API (spec.md §4.8): Participant,
// Topic, DataWriter, DataReader, and the WaitSet/Condition machinery
// applications drive directly. Everything below this package is an
// implementation detail reachable only through these types.
package hdds

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hdds-io/hdds/internal/dispatch"
	"github.com/hdds-io/hdds/internal/discovery"
	"github.com/hdds-io/hdds/internal/history"
	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/reliability"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// TransportMode selects how a Participant reaches the network (spec.md
// §6.2's `--transport` flag).
type TransportMode int

const (
	TransportUDPMulticast TransportMode = iota
	TransportUDPUnicast
	TransportTCP
	TransportIntraProcess
)

// Config is the set of knobs Participant.New accepts beyond name/domain/
// qos, covering spec.md §6.2's reference-participant flags that the core
// itself consumes (bind address, participant index for the port formula).
type Config struct {
	Transport        TransportMode
	BindAddress      net.IP
	ParticipantIndex uint16
	Security         AccessControl    // optional; nil disables rule 5 entirely
	Group            GroupCoordinator // optional; nil leaves PRESENTATION=Group coherent unimplemented
}

// Participant owns one participant's full stack: transports, the receive
// pipeline, discovery, and every local writer/reader (spec.md §4.8).
// The reliability proxies hold no pointer back to Participant; each
// DataWriter and DataReader keeps a pointer to the Participant that
// created it.
type Participant struct {
	Name     string
	DomainID uint32
	LocalPrefix guid.GuidPrefix
	DefaultQoS  qos.Policy

	allocator guid.EntityAllocator

	transports []transport.Transport

	router      *dispatch.Router
	writerIndex *dispatch.WriterGuidIndex

	discoveryReg *discovery.Registry
	matcher      *discovery.Matcher
	spdp         *discovery.SPDPAnnouncer
	sedp         *discovery.SEDPAnnouncer
	lease        *discovery.LeaseTracker

	reliabilityReg *reliability.Registry

	group        GroupCoordinator
	shutdownCond *StatusCondition

	mu       sync.Mutex
	mergers  map[string]*dispatch.TopicMerger
	localEps map[guid.EntityId]*localEndpoint

	shutdown int32
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// localEndpoint is the matching-rule view of a writer or reader this
// participant owns, kept in a plain map rather than back-referencing the
// generic DataWriter[T]/DataReader[T] (spec.md §9).
type localEndpoint struct {
	info    discovery.LocalEndpoint
	onMatch func(remote *discovery.EndpointInfo)
	onUnmatch func(remoteGuid guid.Guid)
}

// New joins a domain and starts SPDP (spec.md §4.8's Participant::new).
func New(name string, domainID uint32, qosPolicy qos.Policy, cfg Config) (*Participant, error) {
	prefix, err := guid.NewGuidPrefix()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Participant{
		Name:        name,
		DomainID:    domainID,
		LocalPrefix: prefix,
		DefaultQoS:  qosPolicy,
		writerIndex: dispatch.NewWriterGuidIndex(),
		mergers:     make(map[string]*dispatch.TopicMerger),
		localEps:    make(map[guid.EntityId]*localEndpoint),
		reliabilityReg: reliability.NewRegistry(),
		discoveryReg:   discovery.NewRegistry(),
		group:          cfg.Group,
		shutdownCond:   newStatusCondition(nextConditionID()),
		cancel:         cancel,
	}

	if cfg.Security != nil {
		p.matcher = &discovery.Matcher{Security: &accessControlAdapter{inner: cfg.Security}}
	} else {
		p.matcher = discovery.NewMatcher()
	}

	p.router = dispatch.NewRouter(prefix)
	p.router.Reliability = p.reliabilityReg
	p.router.WriterIndex = p.writerIndex
	p.router.Generic = &genericSink{p: p}
	p.router.Readers = p.reliabilityReg

	bind := cfg.BindAddress
	if bind == nil {
		bind = net.IPv4zero
	}

	var metatrafficLocators []transport.Locator
	switch cfg.Transport {
	case TransportIntraProcess:
		tr := transport.NewIntraTransport()
		p.transports = append(p.transports, tr)
	default:
		discPort := transport.DiscoveryUnicastPort(uint16(domainID), cfg.ParticipantIndex)
		mcastPort := transport.DiscoveryMulticastPort(uint16(domainID))
		opts := transport.UDPOptions{}
		if cfg.Transport == TransportUDPMulticast {
			opts.MulticastGroup = transport.DefaultSPDPMulticastGroup
		}
		tr, err := transport.NewUDPTransport(bind, discPort, opts)
		if err != nil {
			cancel()
			return nil, &TransportError{Locator: bind.String(), Err: err}
		}
		p.transports = append(p.transports, tr)
		metatrafficLocators = append(metatrafficLocators,
			transport.NewLocator(transport.KindUDPv4, transport.DefaultSPDPMulticastGroup, mcastPort),
			tr.LocalLocator(),
		)
	}

	tx := &participantTransmitter{p: p}
	p.spdp = discovery.NewSPDPAnnouncer(p.selfInfo, p.discoveryReg, tx, metatrafficLocators)
	p.sedp = discovery.NewSEDPAnnouncer(prefix, p.discoveryReg, tx, metatrafficLocators)
	p.router.Discovery = &discoverySink{p: p}
	p.lease = discovery.NewLeaseTracker(p.discoveryReg, p.onLeaseExpired)

	for _, tr := range p.transports {
		p.wg.Add(1)
		go p.receiveLoop(ctx, tr)
	}

	return p, nil
}

func (p *Participant) selfInfo() *discovery.ParticipantInfo {
	return &discovery.ParticipantInfo{
		GuidPrefix:      p.LocalPrefix,
		ProtocolVersion: rtps.DefaultProtocolVersion,
		VendorID:        rtps.VendorIDHdds,
		DomainID:        p.DomainID,
		LeaseDuration:   discovery.DefaultLeaseDuration,
	}
}

func (p *Participant) receiveLoop(ctx context.Context, tr transport.Transport) {
	defer p.wg.Done()
	classifier := &dispatch.Classifier{LocalPrefix: p.LocalPrefix}
	for {
		rcv, err := tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			hlog.Debug("hdds: receive error: %v", err)
			continue
		}
		classified, err := classifier.Classify(rcv.Data)
		if err != nil {
			hlog.Debug("hdds: %v", &ParseError{Context: "classify", Err: err})
			continue
		}
		p.router.Route(classified.Header.GuidPrefix, classified)
	}
}

func (p *Participant) onLeaseExpired(endpoints []*discovery.EndpointInfo) {
	for _, e := range endpoints {
		p.unmatchEveryLocal(e)
	}
}

func (p *Participant) unmatchEveryLocal(remote *discovery.EndpointInfo) {
	if remote.IsWriter {
		p.writerIndex.Unregister(remote.Guid)
	}

	p.mu.Lock()
	locals := make([]*localEndpoint, 0, len(p.localEps))
	for _, le := range p.localEps {
		locals = append(locals, le)
	}
	p.mu.Unlock()

	for _, le := range locals {
		if le.info.Topic != remote.Topic {
			continue
		}
		if le.onUnmatch != nil {
			le.onUnmatch(remote.Guid)
		}
	}
}

// Close shuts the participant down cooperatively (spec.md §5): sets a
// shared flag, stops announcers and the lease tracker, cancels the
// receive loops, and closes every transport.
func (p *Participant) Close() error {
	if !atomic.CompareAndSwapInt32(&p.shutdown, 0, 1) {
		return nil
	}
	p.shutdownCond.notify()
	p.cancel()
	p.spdp.Close()
	p.sedp.Close()
	p.lease.Close()
	for _, tr := range p.transports {
		tr.Close()
	}
	p.wg.Wait()
	return nil
}

func (p *Participant) isShutdown() bool { return atomic.LoadInt32(&p.shutdown) != 0 }

// ShutdownCondition returns a StatusCondition that fires once when the
// participant shuts down. Applications attach it to any WaitSet they block
// on so Close wakes every blocked waiter immediately, rather than leaving
// them to return only once their own timeout elapses (spec.md §5's
// "wakes all waitsets via the manual-notify operation").
func (p *Participant) ShutdownCondition() *StatusCondition { return p.shutdownCond }

// CoherentChangeBegin and CoherentChangeEnd are the PRESENTATION=Group
// coherent hooks spec.md §4.9 and §5 require the core to expose without
// implementing: a no-op unless a GroupCoordinator was supplied at
// construction, in which case it drives the grouping (spec.md's "the core
// exposes the hooks only").
func (p *Participant) CoherentChangeBegin(groupID string) {
	if p.group != nil {
		p.group.BeginCoherentSet(groupID)
	}
}

func (p *Participant) CoherentChangeEnd(groupID string) {
	if p.group != nil {
		p.group.EndCoherentSet(groupID)
	}
}

// locatorsOf returns every transport's local unicast locator, the default
// set a new writer/reader advertises over SEDP.
func (p *Participant) locatorsOf() []transport.Locator {
	out := make([]transport.Locator, 0, len(p.transports))
	for _, tr := range p.transports {
		out = append(out, tr.LocalLocator())
	}
	return out
}

func (p *Participant) mergerFor(topic string) *dispatch.TopicMerger {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.mergers[topic]
	if !ok {
		m = dispatch.NewTopicMerger(topic)
		p.mergers[topic] = m
	}
	return m
}

// matchAgainstKnown evaluates every currently-known remote endpoint
// against a newly-registered local one and calls onMatch for each hit
// (spec.md §4.7.3); used right after CreateWriter/CreateReader so a
// locally-late endpoint still matches peers discovered earlier.
func (p *Participant) matchAgainstKnown(le *localEndpoint) {
	for _, remote := range p.discoveryReg.EndpointsByTopic(le.info.Topic) {
		res := p.matcher.Match(le.info, remote)
		if res.Matched && le.onMatch != nil {
			le.onMatch(remote)
		}
	}
}

func (p *Participant) registerLocal(le *localEndpoint) {
	p.mu.Lock()
	p.localEps[le.info.Guid.EntityID] = le
	p.mu.Unlock()
	p.matchAgainstKnown(le)
}

func (p *Participant) unregisterLocal(id guid.EntityId) {
	p.mu.Lock()
	delete(p.localEps, id)
	p.mu.Unlock()
}

// discoverySink adapts Participant to dispatch.DiscoverySink, since SPDP
// and SEDP each need their own decode logic but the router only knows
// about one combined sink (spec.md §4.4 rule 2).
type discoverySink struct{ p *Participant }

func (d *discoverySink) HandleSPDP(item rtps.Item, ctx rtps.Context) {
	d.p.spdp.HandleSPDP(item, ctx)
}

func (d *discoverySink) HandleSEDP(item rtps.Item, ctx rtps.Context) {
	d.p.sedp.HandleSEDP(item, ctx)

	data, ok := item.Body.(*rtps.Data)
	if !ok {
		return
	}
	isWriter := data.WriterID == guid.EntityIDSEDPPublicationsWriter
	remote, err := discovery.DecodeEndpointInfo(data.Payload, isWriter)
	if err != nil {
		return
	}
	d.p.onRemoteEndpointDiscovered(remote)
}

func (p *Participant) onRemoteEndpointDiscovered(remote *discovery.EndpointInfo) {
	if remote.IsWriter {
		p.writerIndex.Register(remote.Guid, remote.Topic)
	}

	p.mu.Lock()
	locals := make([]*localEndpoint, 0, len(p.localEps))
	for _, le := range p.localEps {
		locals = append(locals, le)
	}
	p.mu.Unlock()

	for _, le := range locals {
		res := p.matcher.Match(le.info, remote)
		if res.Matched && le.onMatch != nil {
			le.onMatch(remote)
		}
	}
}

// genericSink adapts Participant's TopicMerger map to dispatch.GenericSink
// (spec.md §4.4 rule 4's fallback, topic-only demultiplex branch).
type genericSink struct{ p *Participant }

func (g *genericSink) DeliverByTopic(topic string, writerID guid.EntityId, sn guid.SequenceNumber, payload []byte) {
	g.p.mergerFor(topic).Push(dispatch.IntraSample{WriterGUID: writerID.String(), Payload: payload})
}

// participantTransmitter adapts Participant's transports to the
// discovery.Transmitter/reliability.Transmitter shape: encode once, send
// to every requested locator.
type participantTransmitter struct{ p *Participant }

func (t *participantTransmitter) Send(locators []transport.Locator, msg *rtps.Message) error {
	raw := rtps.EncodeMessage(msg)
	var firstErr error
	for _, loc := range locators {
		for _, tr := range t.p.transports {
			if err := tr.Send(loc, raw); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// accessControlAdapter converts the public [16]byte-keyed AccessControl
// trait to discovery's internal guid.Guid-keyed one, keeping the guid
// package out of the public API surface.
type accessControlAdapter struct{ inner AccessControl }

func (a *accessControlAdapter) AllowMatch(local, remote guid.Guid, topic string) bool {
	return a.inner.AllowMatch(local.Bytes(), remote.Bytes(), topic)
}

// newHistoryCache is a thin constructor wrapper so DataWriter can build
// its history.Cache without importing internal/history directly in
// datawriter.go's public-facing section.
func newHistoryCache(p qos.Policy) *history.Cache { return history.NewCache(p) }
