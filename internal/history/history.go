// Copyright 2024 The hdds Authors.

// Package history implements the per-writer HistoryCache (spec.md §4.5):
// an ordered store of samples keyed by sequence number, shared by the
// reliability engine (retransmission) and the sender (durability replay).
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/pkg/guid"
)

// Sample is one entry in a HistoryCache.
type Sample struct {
	SequenceNumber guid.SequenceNumber
	InlineQoS      []byte
	Payload        []byte
	KeyOnly        bool
	Timestamp      time.Time
}

// Cache is a per-writer ordered store of samples, keyed by sequence
// number. All operations lock a single mutex: a HistoryCache is owned and
// mutated only by its writer's worker goroutine (spec.md §5), so
// contention is limited to the occasional cross-thread read (e.g. a
// diagnostic snapshot).
type Cache struct {
	mu       sync.Mutex
	policy   qos.Policy
	samples  []Sample // ascending by SequenceNumber
	nextSN   guid.SequenceNumber
	ackedUpTo map[guid.Guid]guid.SequenceNumber
}

// NewCache returns an empty cache governed by policy.
func NewCache(policy qos.Policy) *Cache {
	return &Cache{
		policy:    policy,
		nextSN:    guid.SequenceNumber(1),
		ackedUpTo: make(map[guid.Guid]guid.SequenceNumber),
	}
}

// Append stores a new sample and returns its assigned sequence number,
// enforcing keep_last(N) or keep_all bounded by resource_limits (spec.md
// §4.5).
func (c *Cache) Append(inlineQoS, payload []byte, keyOnly bool) guid.SequenceNumber {
	c.mu.Lock()
	defer c.mu.Unlock()

	sn := c.nextSN
	c.nextSN = c.nextSN.Next()
	c.samples = append(c.samples, Sample{
		SequenceNumber: sn,
		InlineQoS:      inlineQoS,
		Payload:        payload,
		KeyOnly:        keyOnly,
		Timestamp:      time.Now(),
	})

	c.evictLocked()
	return sn
}

// Get returns the sample at seq, if still present.
func (c *Cache) Get(seq guid.SequenceNumber) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfLocked(seq)
	if i < 0 {
		return Sample{}, false
	}
	return c.samples[i], true
}

// Range returns every stored sample with first <= seq <= last, ascending.
func (c *Cache) Range(first, last guid.SequenceNumber) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Sample
	for _, s := range c.samples {
		if s.SequenceNumber < first {
			continue
		}
		if s.SequenceNumber > last {
			break
		}
		out = append(out, s)
	}
	return out
}

// AdvanceAcked records that reader has acknowledged up through seq,
// enabling eviction once every matched reader is caught up (spec.md
// §4.5).
func (c *Cache) AdvanceAcked(reader guid.Guid, seq guid.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.ackedUpTo[reader]; ok && seq <= cur {
		return
	}
	c.ackedUpTo[reader] = seq
	c.evictLocked()
}

// Unmatch drops a reader's ack-tracking entry (called on unmatch/lease
// expiry so it no longer holds back eviction).
func (c *Cache) Unmatch(reader guid.Guid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ackedUpTo, reader)
	c.evictLocked()
}

// Dispose removes [first, last] from the cache, the GAP-emitting range
// clear (spec.md §4.5); the caller is responsible for actually sending the
// GAP submessage.
func (c *Cache) Dispose(first, last guid.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	filtered := c.samples[:0]
	for _, s := range c.samples {
		if s.SequenceNumber >= first && s.SequenceNumber <= last {
			continue
		}
		filtered = append(filtered, s)
	}
	c.samples = filtered
}

// LastSequenceNumber returns the most recently assigned sequence number,
// or 0 if the cache has never had a sample appended.
func (c *Cache) LastSequenceNumber() guid.SequenceNumber {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextSN - 1
}

// FirstSequenceNumber returns the oldest retained sequence number, or 0 if
// empty.
func (c *Cache) FirstSequenceNumber() guid.SequenceNumber {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[0].SequenceNumber
}

func (c *Cache) indexOfLocked(seq guid.SequenceNumber) int {
	i := sort.Search(len(c.samples), func(i int) bool {
		return c.samples[i].SequenceNumber >= seq
	})
	if i < len(c.samples) && c.samples[i].SequenceNumber == seq {
		return i
	}
	return -1
}

// evictLocked applies spec.md §4.5's eviction policy in two steps.
//
// First, the HISTORY policy's hard cap: keep_last(N) always truncates to
// the N most recent samples, even ones no reader has acked yet (a reader
// that falls that far behind gets a GAP on next heartbeat/nack exchange);
// keep_all has no such window and is bounded only by resource_limits.
//
// Second, ack-gated early eviction: a sample whose sequence number is
// below every matched reader's acked_up_to is no longer needed for
// retransmission, so a Volatile writer drops it immediately rather than
// waiting for the hard cap; the sample at acked_up_to itself is kept, and
// with no matched reader nothing is dropped by this step. TRANSIENT_LOCAL and stronger durability writers skip this step and
// rely solely on the HISTORY cap, so a late-joining reader can still be
// served the retained window regardless of what earlier readers acked.
func (c *Cache) evictLocked() {
	depth := c.policy.EffectiveHistoryDepth()
	if depth >= 0 && len(c.samples) > depth {
		c.samples = c.samples[len(c.samples)-depth:]
	}

	if c.policy.Durability < qos.TransientLocal {
		if minAcked := c.minAckedLocked(); minAcked != nil {
			keep := c.samples[:0:0]
			for _, s := range c.samples {
				if s.SequenceNumber < *minAcked {
					continue
				}
				keep = append(keep, s)
			}
			c.samples = keep
		}
	}

	if c.policy.ResourceLimits.MaxSamples > 0 && len(c.samples) > c.policy.ResourceLimits.MaxSamples {
		excess := len(c.samples) - c.policy.ResourceLimits.MaxSamples
		c.samples = c.samples[excess:]
	}
}

// minAckedLocked returns the minimum acked_up_to across all matched
// readers, or nil if there are no matched readers (nothing has been
// acknowledged yet, so eviction by ack state cannot proceed).
func (c *Cache) minAckedLocked() *guid.SequenceNumber {
	if len(c.ackedUpTo) == 0 {
		return nil
	}
	var min guid.SequenceNumber
	first := true
	for _, v := range c.ackedUpTo {
		if first || v < min {
			min = v
			first = false
		}
	}
	return &min
}
