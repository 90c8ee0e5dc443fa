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

// Transmitter sends a fully-formed RTPS message to a set of locators. It is
// satisfied by whatever UDP/TCP/intra-process sender the entity layer
// constructs; this package only ever builds messages addressed to the
// builtin discovery endpoints.
type Transmitter interface {
	Send(locators []transport.Locator, msg *rtps.Message) error
}

// SPDPAnnouncer periodically broadcasts this participant's ParticipantInfo
// and decodes incoming SPDP announcements into the Registry (spec.md
// §4.7.1). Grounded on the teacher's meshage.checkDegree jittered retry
// loop: a plain time.Ticker period, perturbed a few percent each tick
// rather than backed off, since SPDP has no notion of "degree" to chase.
type SPDPAnnouncer struct {
	Self     func() *ParticipantInfo // returns the current local announcement, called each tick
	Registry *Registry
	Transmit Transmitter
	Locators []transport.Locator // multicast discovery locators
	Period   time.Duration

	mu       sync.Mutex
	sn       guid.SequenceNumber
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSPDPAnnouncer starts the periodic broadcast goroutine.
func NewSPDPAnnouncer(self func() *ParticipantInfo, reg *Registry, tx Transmitter, locators []transport.Locator) *SPDPAnnouncer {
	a := &SPDPAnnouncer{
		Self:     self,
		Registry: reg,
		Transmit: tx,
		Locators: locators,
		Period:   DefaultSPDPPeriod,
		stopCh:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *SPDPAnnouncer) run() {
	defer a.wg.Done()
	t := time.NewTicker(a.jittered())
	defer t.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-t.C:
			a.announce(a.Locators)
			t.Reset(a.jittered())
		}
	}
}

// jittered perturbs the configured period by up to +/-10%, the same
// spread the teacher's checkDegree loop applies to its retry interval.
func (a *SPDPAnnouncer) jittered() time.Duration {
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

func (a *SPDPAnnouncer) announce(locators []transport.Locator) {
	p := a.Self()
	if p == nil {
		return
	}
	payload := EncodeParticipantInfo(p)

	a.mu.Lock()
	a.sn = a.sn.Next()
	sn := a.sn
	a.mu.Unlock()

	msg := &rtps.Message{
		Header: rtps.Header{Magic: rtps.MagicRTPS, Version: rtps.DefaultProtocolVersion, Vendor: rtps.VendorIDHdds, GuidPrefix: p.GuidPrefix},
		Items: []rtps.Item{{
			Kind: rtps.KindData,
			Body: &rtps.Data{
				ReaderID: guid.EntityIDSPDPReader,
				WriterID: guid.EntityIDSPDPWriter,
				WriterSN: sn,
				Payload:  payload,
			},
		}},
	}
	if err := a.Transmit.Send(locators, msg); err != nil {
		hlog.Debug("discovery: spdp send failed: %v", err)
	}
}

// AnnounceTo sends one unicast SPDP announcement to a single newly-seen
// peer (spec.md §4.7.1's "on first reception... send an extra unicast
// SPDP to shorten discovery latency under multicast loss").
func (a *SPDPAnnouncer) AnnounceTo(locators []transport.Locator) {
	a.announce(locators)
}

// Close stops the broadcast goroutine.
func (a *SPDPAnnouncer) Close() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// HandleSPDP implements dispatch.DiscoverySink. It decodes the
// ParticipantInfo payload, upserts it into the Registry, and when the
// participant was previously unknown, fires an extra unicast reply.
func (a *SPDPAnnouncer) HandleSPDP(item rtps.Item, ctx rtps.Context) {
	d, ok := item.Body.(*rtps.Data)
	if !ok || d.KeyOnly {
		return
	}
	p, err := DecodeParticipantInfo(d.Payload)
	if err != nil {
		hlog.Warn("discovery: malformed spdp payload: %v", err)
		return
	}
	if p.LeaseDuration <= 0 {
		p.LeaseDuration = DefaultLeaseDuration
	}
	p.LastSeen = time.Now()

	isNew := a.Registry.UpsertParticipant(p)
	if isNew {
		hlog.Info("discovery: new participant %s", p.GuidPrefix)
		if len(p.MetatrafficUnicastLocators) > 0 {
			a.AnnounceTo(p.MetatrafficUnicastLocators)
		}
	}
}
