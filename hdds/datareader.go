// Copyright 2024 The hdds Authors.

package hdds

import (
	"sync"
	"time"

	"github.com/hdds-io/hdds/internal/dispatch"
	"github.com/hdds-io/hdds/internal/discovery"
	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/reliability"
	"github.com/hdds-io/hdds/pkg/guid"
	"github.com/hdds-io/hdds/pkg/hlog"
)

// bufEntry is one buffered sample plus its LIFESPAN expiry, if any (spec.md
// §4.9). expiresAt is the zero Time when the policy's Lifespan is Infinite.
type bufEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// DataReader subscribes to samples of type T on a Topic (spec.md §4.8). It
// receives same-process samples directly through the TopicMerger and
// cross-process samples through a matched WriterProxy's delivery cursor;
// both paths feed the same internal buffer.
//
// DEADLINE, LIFESPAN, TIME_BASED_FILTER and OWNERSHIP=Exclusive are all
// enforced here, scoped to the reader's single implicit instance: there is
// no per-key instance registry (every sample on a topic is treated as one
// instance), matching this reader's flat, unkeyed buffer. A keyed instance
// registry is the natural extension if a future topic type needs per-key
// deadlines or per-key ownership — see DESIGN.md.
type DataReader[T any] struct {
	p      *Participant
	topic  Topic
	guid   guid.Guid
	policy qos.Policy
	codec  Codec[T]

	engine *reliability.Reader
	sub    *dispatch.Subscription
	status *StatusCondition

	mu           sync.Mutex
	buf          []bufEntry[T]
	matched      map[guid.Guid]*reliability.WriterProxy
	closed       bool
	lastAccepted time.Time

	deadlineTimer  *time.Timer
	deadlineMissed int

	ownerMu        sync.Mutex
	writerStrength map[string]int32
	owningWriter   string

	wg   sync.WaitGroup
	done chan struct{}
}

// CreateReader allocates a new DataReader on p, subscribing to the topic's
// intra-process fast path and matching against every already-known remote
// writer (spec.md §4.8's Participant::create_reader).
func CreateReader[T any](p *Participant, topic Topic, policy qos.Policy, codec Codec[T]) (*DataReader[T], error) {
	if p.isShutdown() {
		return nil, ErrShutdown
	}

	g := guid.Guid{Prefix: p.LocalPrefix, EntityID: p.allocator.Next(guid.KindReaderWithKey)}
	tx := &participantTransmitter{p: p}

	r := &DataReader[T]{
		p:              p,
		topic:          topic,
		guid:           g,
		policy:         policy,
		codec:          codec,
		engine:         reliability.NewReader(g, tx, reliability.WriterOptions{}),
		status:         newStatusCondition(nextConditionID()),
		matched:        make(map[guid.Guid]*reliability.WriterProxy),
		writerStrength: make(map[string]int32),
		done:           make(chan struct{}),
	}

	p.reliabilityReg.RegisterReader(r.engine)

	r.sub = p.mergerFor(topic.Name).Bind(64)
	r.wg.Add(1)
	go r.pump()
	r.resetDeadlineTimer()

	le := &localEndpoint{
		info: discovery.LocalEndpoint{
			Guid:     g,
			IsWriter: false,
			Topic:    topic.Name,
			TypeName: topic.TypeName,
			Policy:   policy,
		},
		onMatch:   r.onMatch,
		onUnmatch: r.onUnmatch,
	}
	p.registerLocal(le)

	return r, nil
}

// pump drains the TopicMerger subscription into buf, decoding remote bytes
// on the way in but passing a locally-published value through untouched
// (spec.md §4.4's intra-process fast path bypasses CDR entirely).
func (r *DataReader[T]) pump() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case s, ok := <-r.sub.C:
			if !ok {
				return
			}
			r.ingest(s.Payload, s.WriterGUID)
		}
	}
}

func (r *DataReader[T]) ingest(payload interface{}, writerKey string) {
	switch v := payload.(type) {
	case T:
		r.push(v, writerKey)
	case []byte:
		sample, err := r.codec.Unmarshal(v)
		if err != nil {
			hlog.Debug("hdds: %v", &ParseError{Context: "datareader unmarshal", Err: err})
			return
		}
		r.push(sample, writerKey)
	default:
		hlog.Debug("hdds: datareader received unexpected sample type %T", payload)
	}
}

// push applies OWNERSHIP=Exclusive filtering, resets the DEADLINE timer,
// applies TIME_BASED_FILTER, and stamps LIFESPAN before buffering v
// (spec.md §4.9). writerKey is the publishing writer's guid.String(), or
// "" for a sample whose origin wasn't tracked (e.g. a direct test push);
// an untracked origin never loses to exclusive filtering.
func (r *DataReader[T]) push(v T, writerKey string) {
	if r.policy.Ownership.Kind == qos.Exclusive && writerKey != "" {
		r.ownerMu.Lock()
		owner := r.owningWriter
		r.ownerMu.Unlock()
		if owner != "" && owner != writerKey {
			return
		}
	}

	r.resetDeadlineTimer()

	now := time.Now()
	r.mu.Lock()
	if r.policy.TimeBasedFilter > 0 {
		if !r.lastAccepted.IsZero() && now.Sub(r.lastAccepted) < r.policy.TimeBasedFilter {
			r.mu.Unlock()
			return
		}
		r.lastAccepted = now
	}

	entry := bufEntry[T]{value: v}
	if r.policy.Lifespan != qos.Infinite && r.policy.Lifespan > 0 {
		entry.expiresAt = now.Add(r.policy.Lifespan)
	}
	r.buf = append(r.buf, entry)
	r.mu.Unlock()
	r.status.notify()
}

// dropExpiredLocked discards every LIFESPAN-expired entry from the front of
// buf; entries share one Lifespan duration, so expiry times are
// non-decreasing in arrival order and a prefix trim suffices. Callers must
// hold r.mu.
func (r *DataReader[T]) dropExpiredLocked() {
	if len(r.buf) == 0 {
		return
	}
	now := time.Now()
	i := 0
	for i < len(r.buf) {
		e := r.buf[i]
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			i++
			continue
		}
		break
	}
	if i > 0 {
		r.buf = r.buf[i:]
	}
}

// resetDeadlineTimer restarts the DEADLINE countdown; a no-op when the
// policy has no deadline (spec.md §4.9).
func (r *DataReader[T]) resetDeadlineTimer() {
	if r.policy.Deadline == qos.Infinite || r.policy.Deadline <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deadlineTimer == nil {
		r.deadlineTimer = time.AfterFunc(r.policy.Deadline, r.onDeadlineMissed)
		return
	}
	r.deadlineTimer.Reset(r.policy.Deadline)
}

// onDeadlineMissed fires once for an entire gap with no new sample,
// incrementing the REQUESTED_DEADLINE_MISSED counter; it does not re-arm
// itself; only a subsequent accepted sample (via resetDeadlineTimer in
// push) starts counting toward the next period. A 1100ms gap against a
// 500ms deadline therefore counts as one miss, not two (spec.md §8's
// deadline-miss scenario).
func (r *DataReader[T]) onDeadlineMissed() {
	r.mu.Lock()
	r.deadlineMissed++
	r.mu.Unlock()
	r.status.notify()
}

// RequestedDeadlineMissed returns how many times a DEADLINE period has
// elapsed with no new sample since this reader was created. The count is
// cumulative, and one gap between samples counts once however many periods
// it spans (spec.md §4.9's REQUESTED_DEADLINE_MISSED status).
func (r *DataReader[T]) RequestedDeadlineMissed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deadlineMissed
}

// recomputeOwner selects the live matched writer with the highest
// OWNERSHIP strength as the reader's sole accepted source, implementing
// OWNERSHIP=Exclusive failover: when the current owner unmatches, the
// next-highest-strength writer takes over with no reader-side action
// required (spec.md §4.9).
func (r *DataReader[T]) recomputeOwner() {
	r.ownerMu.Lock()
	defer r.ownerMu.Unlock()
	if r.policy.Ownership.Kind != qos.Exclusive {
		r.owningWriter = ""
		return
	}
	best := ""
	bestStrength := int32(-1 << 31)
	for key, strength := range r.writerStrength {
		if strength > bestStrength {
			bestStrength = strength
			best = key
		}
	}
	r.owningWriter = best
}

// onMatch registers a newly matched remote writer's proxy, wiring its
// delivery cursor to this reader's buffer (spec.md §4.7.3 "on match").
func (r *DataReader[T]) onMatch(remote *discovery.EndpointInfo) {
	reliable := remote.Policy.Reliability == qos.Reliable && r.policy.Reliability == qos.Reliable
	wp := reliability.NewWriterProxy(remote.Guid, reliable, remote.UnicastLocators)
	writerKey := remote.Guid.String()
	wp.OnDeliver = func(seq guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool) {
		if keyOnly {
			return
		}
		r.ingest(payload, writerKey)
	}

	r.mu.Lock()
	r.matched[remote.Guid] = wp
	r.mu.Unlock()

	r.ownerMu.Lock()
	r.writerStrength[writerKey] = remote.Policy.Ownership.Strength
	r.ownerMu.Unlock()
	r.recomputeOwner()

	r.engine.MatchWriter(wp)
	r.status.notify()
}

// onUnmatch drops a remote writer proxy on unmatch or lease expiry,
// re-electing an OWNERSHIP=Exclusive owner from whatever remains matched
// (spec.md §4.9).
func (r *DataReader[T]) onUnmatch(remote guid.Guid) {
	r.mu.Lock()
	_, ok := r.matched[remote]
	delete(r.matched, remote)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.ownerMu.Lock()
	delete(r.writerStrength, remote.String())
	r.ownerMu.Unlock()
	r.recomputeOwner()

	r.engine.UnmatchWriter(remote)
	r.status.notify()
}

// Take removes and returns the oldest buffered sample, if any (spec.md
// §4.8's DataReader::take).
func (r *DataReader[T]) Take() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropExpiredLocked()
	var zero T
	if len(r.buf) == 0 {
		return zero, false
	}
	v := r.buf[0].value
	r.buf = r.buf[1:]
	if len(r.buf) == 0 {
		r.status.Reset()
	}
	return v, true
}

// TakeBatch removes and returns up to n buffered samples, oldest first.
func (r *DataReader[T]) TakeBatch(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropExpiredLocked()
	if n <= 0 || len(r.buf) == 0 {
		return nil
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]T, n)
	for i, e := range r.buf[:n] {
		out[i] = e.value
	}
	r.buf = r.buf[n:]
	if len(r.buf) == 0 {
		r.status.Reset()
	}
	return out
}

// Read returns the oldest buffered sample without removing it (spec.md
// §4.8's DataReader::read, the non-destructive counterpart to Take).
func (r *DataReader[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropExpiredLocked()
	var zero T
	if len(r.buf) == 0 {
		return zero, false
	}
	return r.buf[0].value, true
}

// ReadAll returns every buffered sample without removing it.
func (r *DataReader[T]) ReadAll() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropExpiredLocked()
	out := make([]T, len(r.buf))
	for i, e := range r.buf {
		out[i] = e.value
	}
	return out
}

// GetStatusCondition returns the condition that fires when a new sample
// arrives or on match/unmatch (spec.md §4.8).
func (r *DataReader[T]) GetStatusCondition() *StatusCondition { return r.status }

// Close unsubscribes from the topic and releases the reliability engine.
func (r *DataReader[T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.sub.Close()
	r.wg.Wait()

	r.mu.Lock()
	if r.deadlineTimer != nil {
		r.deadlineTimer.Stop()
	}
	r.mu.Unlock()

	r.p.unregisterLocal(r.guid.EntityID)
	r.p.reliabilityReg.UnregisterReader(r.guid.EntityID)
	return nil
}
