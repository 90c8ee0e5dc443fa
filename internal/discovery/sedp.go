// Copyright 2024 The hdds Authors.

package discovery

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/internal/transport"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// SEDPAnnouncer broadcasts local endpoint announcements over the builtin
// Publications/Subscriptions topics and decodes incoming ones into the
// Registry (spec.md §4.7.2). Because SEDP is reliable+transient-local, a
// late-joining peer's first unicast contact gets a replay of every
// locally-cached announcement rather than waiting for the next tick.
type SEDPAnnouncer struct {
	LocalPrefix guid.GuidPrefix
	Registry    *Registry
	Transmit    Transmitter
	Locators    []transport.Locator
	Period      time.Duration

	// Local is every endpoint this participant has announced, keyed by
	// guid, used to replay the full cache to a new unicast peer.
	mu    sync.Mutex
	local map[guid.Guid]*EndpointInfo
	sn    guid.SequenceNumber

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSEDPAnnouncer starts the periodic re-announcement goroutine (SEDP is
// reliable, so periodic re-broadcast is a loss-recovery belt-and-braces
// measure, not the primary delivery path).
func NewSEDPAnnouncer(local guid.GuidPrefix, reg *Registry, tx Transmitter, locators []transport.Locator) *SEDPAnnouncer {
	a := &SEDPAnnouncer{
		LocalPrefix: local,
		Registry:    reg,
		Transmit:    tx,
		Locators:    locators,
		Period:      DefaultSPDPPeriod,
		local:       make(map[guid.Guid]*EndpointInfo),
		stopCh:      make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *SEDPAnnouncer) run() {
	defer a.wg.Done()
	t := time.NewTicker(a.jittered())
	defer t.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-t.C:
			a.announceAll(a.Locators)
			t.Reset(a.jittered())
		}
	}
}

func (a *SEDPAnnouncer) jittered() time.Duration {
	base := a.Period
	if base <= 0 {
		base = DefaultSPDPPeriod
	}
	spread := int64(base) / 10
	if spread <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(2*spread)-spread)
}

// Announce registers a locally-created endpoint and sends its first
// announcement.
func (a *SEDPAnnouncer) Announce(e *EndpointInfo) {
	a.mu.Lock()
	a.local[e.Guid] = e
	a.mu.Unlock()
	a.send(e, a.Locators)
}

// Withdraw removes a locally-destroyed endpoint from the replay cache.
func (a *SEDPAnnouncer) Withdraw(g guid.Guid) {
	a.mu.Lock()
	delete(a.local, g)
	a.mu.Unlock()
}

// ReplayTo resends every locally-known endpoint announcement to one newly
// discovered unicast peer (spec.md §4.7.2).
func (a *SEDPAnnouncer) ReplayTo(locators []transport.Locator) {
	a.mu.Lock()
	snapshot := make([]*EndpointInfo, 0, len(a.local))
	for _, e := range a.local {
		snapshot = append(snapshot, e)
	}
	a.mu.Unlock()

	for _, e := range snapshot {
		a.send(e, locators)
	}
}

func (a *SEDPAnnouncer) announceAll(locators []transport.Locator) {
	a.mu.Lock()
	snapshot := make([]*EndpointInfo, 0, len(a.local))
	for _, e := range a.local {
		snapshot = append(snapshot, e)
	}
	a.mu.Unlock()

	for _, e := range snapshot {
		a.send(e, locators)
	}
}

func (a *SEDPAnnouncer) send(e *EndpointInfo, locators []transport.Locator) {
	writerID := guid.EntityIDSEDPSubscriptionsWriter
	readerID := guid.EntityIDSEDPSubscriptionsReader
	if e.IsWriter {
		writerID = guid.EntityIDSEDPPublicationsWriter
		readerID = guid.EntityIDSEDPPublicationsReader
	}

	a.mu.Lock()
	a.sn = a.sn.Next()
	sn := a.sn
	a.mu.Unlock()

	msg := &rtps.Message{
		Header: rtps.Header{Magic: rtps.MagicRTPS, Version: rtps.DefaultProtocolVersion, Vendor: rtps.VendorIDHdds, GuidPrefix: a.LocalPrefix},
		Items: []rtps.Item{{
			Kind: rtps.KindData,
			Body: &rtps.Data{
				ReaderID: readerID,
				WriterID: writerID,
				WriterSN: sn,
				Payload:  EncodeEndpointInfo(e),
			},
		}},
	}
	if err := a.Transmit.Send(locators, msg); err != nil {
		hlog.Debug("discovery: sedp send failed: %v", err)
	}
}

// Close stops the re-announcement goroutine.
func (a *SEDPAnnouncer) Close() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// HandleSEDP implements dispatch.DiscoverySink. The writer entity id the
// DATA arrived on (Publications vs Subscriptions builtin writer)
// determines whether the announced endpoint is itself a writer or reader,
// since the payload carries no such flag of its own.
func (a *SEDPAnnouncer) HandleSEDP(item rtps.Item, ctx rtps.Context) {
	d, ok := item.Body.(*rtps.Data)
	if !ok || d.KeyOnly {
		return
	}
	isWriter := d.WriterID == guid.EntityIDSEDPPublicationsWriter

	e, err := DecodeEndpointInfo(d.Payload, isWriter)
	if err != nil {
		hlog.Warn("discovery: malformed sedp payload: %v", err)
		return
	}
	e.LastSeen = time.Now()
	a.Registry.UpsertEndpoint(e)
}
