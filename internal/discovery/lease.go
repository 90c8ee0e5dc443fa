// Copyright 2024 The hdds Authors.

package discovery

import (
	"sync"
	"time"

	"github.com/hdds-io/hdds/pkg/hlog"
)

// LeaseTracker evicts participants whose SPDP lease has expired, cascading
// the removal to every endpoint they own (spec.md §4.7.1). Grounded on the
// teacher's internal/ron.Server.clientReaper: a fixed-rate time.Ticker
// sweep rather than one timer per participant, since the sweep cost is
// dominated by the map scan either way.
type LeaseTracker struct {
	Registry *Registry
	OnExpire func(endpoints []*EndpointInfo)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLeaseTracker starts the 1 Hz sweep goroutine.
func NewLeaseTracker(reg *Registry, onExpire func([]*EndpointInfo)) *LeaseTracker {
	lt := &LeaseTracker{Registry: reg, OnExpire: onExpire, stopCh: make(chan struct{})}
	lt.wg.Add(1)
	go lt.run()
	return lt
}

func (lt *LeaseTracker) run() {
	defer lt.wg.Done()
	t := time.NewTicker(DefaultLeaseSweepPeriod)
	defer t.Stop()
	for {
		select {
		case <-lt.stopCh:
			return
		case <-t.C:
			lt.sweep()
		}
	}
}

func (lt *LeaseTracker) sweep() {
	now := time.Now()
	for _, p := range lt.Registry.Participants() {
		lease := p.LeaseDuration
		if lease <= 0 {
			lease = DefaultLeaseDuration
		}
		if now.Sub(p.LastSeen) <= lease {
			continue
		}
		hlog.Info("discovery: lease expired for participant %s", p.GuidPrefix)
		removed := lt.Registry.RemoveParticipant(p.GuidPrefix)
		if lt.OnExpire != nil && len(removed) > 0 {
			lt.OnExpire(removed)
		}
	}
}

// Close stops the sweep goroutine.
func (lt *LeaseTracker) Close() {
	lt.stopOnce.Do(func() { close(lt.stopCh) })
	lt.wg.Wait()
}
