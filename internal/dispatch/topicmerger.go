package dispatch

import (
	"sync"
	"sync/atomic"
)

// IntraSample is one sample pushed through the intra-process fast path: no
// CDR encoding, no RTPS submessage, no transport (spec.md §4.4).
type IntraSample struct {
	WriterGUID string
	Payload    interface{} // the application sample, never serialized on this path
}

// intraReader is one local DataReader's subscription to a TopicMerger,
// modeled on miniplumber.Reader: a buffered channel plus a Done channel
// that Close signals exactly once.
type intraReader struct {
	c    chan IntraSample
	done chan struct{}
	once sync.Once
}

func (r *intraReader) Close() {
	r.once.Do(func() { close(r.done) })
}

// TopicMerger fans out samples from every local writer on one topic to
// every local reader bound to it, unconditionally used for same-process
// matches (spec.md §4.4: "This path bypasses CDR encoding, RTPS building,
// and the transport... used unconditionally for same-process matches").
//
// Grounded on internal/miniplumber.Pipe: an ID-keyed map of readers, each
// delivered to over a buffered channel guarded by a per-reader Done
// channel so a slow/departed reader cannot block the writer.
type TopicMerger struct {
	topic string

	mu      sync.Mutex
	readers map[int64]*intraReader
	nextID  int64

	delivered uint64
	dropped   uint64
}

// NewTopicMerger returns an empty merger for one topic.
func NewTopicMerger(topic string) *TopicMerger {
	return &TopicMerger{topic: topic, readers: make(map[int64]*intraReader)}
}

// Subscription is a local reader's handle on a TopicMerger binding.
type Subscription struct {
	id     int64
	merger *TopicMerger
	C      <-chan IntraSample
}

// Close unbinds the reader; subsequent Push calls skip it without
// blocking.
func (s *Subscription) Close() {
	s.merger.mu.Lock()
	r, ok := s.merger.readers[s.id]
	delete(s.merger.readers, s.id)
	s.merger.mu.Unlock()
	if ok {
		r.Close()
	}
}

// Bind attaches a local DataReader to this topic's fast path.
func (m *TopicMerger) Bind(bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 16
	}
	r := &intraReader{c: make(chan IntraSample, bufSize), done: make(chan struct{})}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.readers[id] = r
	m.mu.Unlock()

	return &Subscription{id: id, merger: m, C: r.c}
}

// Push delivers one sample from a local writer to every currently bound
// reader. A reader whose buffer is full is skipped rather than blocking
// the writer, matching miniplumber's select-with-Done discipline; the
// drop is counted, not silent.
func (m *TopicMerger) Push(s IntraSample) {
	m.mu.Lock()
	readers := make([]*intraReader, 0, len(m.readers))
	for _, r := range m.readers {
		readers = append(readers, r)
	}
	m.mu.Unlock()

	for _, r := range readers {
		select {
		case <-r.done:
			continue
		case r.c <- s:
			atomic.AddUint64(&m.delivered, 1)
		default:
			atomic.AddUint64(&m.dropped, 1)
		}
	}
}

// Topic returns the topic name this merger serves.
func (m *TopicMerger) Topic() string { return m.topic }

// Stats returns (delivered, dropped) counters for diagnostics.
func (m *TopicMerger) Stats() (delivered, dropped uint64) {
	return atomic.LoadUint64(&m.delivered), atomic.LoadUint64(&m.dropped)
}
