package dispatch

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/hdds-io/hdds/pkg/guid"
)

const indexShards = 16

// WriterGuidIndex is the generic-demultiplexer lookup of spec.md §4.4 rule
// 4: a SEDP-registered map from writer guid to topic name, sharded and
// hashed with xxhash to keep the hot receive-path lookup cheap under
// contention from many concurrent classifier goroutines.
type WriterGuidIndex struct {
	shards [indexShards]indexShard
}

type indexShard struct {
	mu    sync.RWMutex
	byGUI map[guid.Guid]string
}

// NewWriterGuidIndex returns an empty index.
func NewWriterGuidIndex() *WriterGuidIndex {
	idx := &WriterGuidIndex{}
	for i := range idx.shards {
		idx.shards[i].byGUI = make(map[guid.Guid]string)
	}
	return idx
}

func shardFor(g guid.Guid) int {
	b := g.Bytes()
	return int(xxhash.Sum64(b[:]) % indexShards)
}

// Register records that writer publishes on topic, called when SEDP
// discovers a new publication.
func (idx *WriterGuidIndex) Register(writer guid.Guid, topic string) {
	s := &idx.shards[shardFor(writer)]
	s.mu.Lock()
	s.byGUI[writer] = topic
	s.mu.Unlock()
}

// Unregister removes a writer from the index, called on unmatch/lease
// expiry.
func (idx *WriterGuidIndex) Unregister(writer guid.Guid) {
	s := &idx.shards[shardFor(writer)]
	s.mu.Lock()
	delete(s.byGUI, writer)
	s.mu.Unlock()
}

// Lookup resolves a writer guid to its topic name.
func (idx *WriterGuidIndex) Lookup(writer guid.Guid) (string, bool) {
	s := &idx.shards[shardFor(writer)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic, ok := s.byGUI[writer]
	return topic, ok
}
