package dispatch

import (
	"sync"

	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
)

// fragKey identifies one in-flight reassembly: a writer guid plus the
// sequence number of the sample being fragmented (spec.md §4.4 rule 5).
type fragKey struct {
	writer guid.Guid
	sn     guid.SequenceNumber
}

type fragContext struct {
	sampleSize   uint32
	fragmentSize uint16
	received     map[uint32][]byte // fragment index (0-based) -> bytes
	inlineQoS    []byte
}

// Reassembler accumulates DATA_FRAG submessages into complete sample
// payloads, synthesizing the equivalent of a DATA once every fragment has
// arrived (spec.md §4.4 rule 5). One Reassembler instance is shared by a
// participant's receive path; contexts are independent per (writer, seq).
type Reassembler struct {
	mu    sync.Mutex
	inFly map[fragKey]*fragContext
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{inFly: make(map[fragKey]*fragContext)}
}

// Add folds one DATA_FRAG into its reassembly context. It returns
// (true, payload, inlineQoS) once the sample is complete, or
// (false, nil, nil) while fragments are still outstanding.
func (a *Reassembler) Add(sourcePrefix guid.GuidPrefix, df *rtps.DataFrag) (bool, []byte, []byte) {
	key := fragKey{writer: guid.Guid{Prefix: sourcePrefix, EntityID: df.WriterID}, sn: df.WriterSN}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, ok := a.inFly[key]
	if !ok {
		ctx = &fragContext{
			sampleSize:   df.SampleSize,
			fragmentSize: df.FragmentSize,
			received:     make(map[uint32][]byte),
		}
		a.inFly[key] = ctx
	}
	if len(df.InlineQoS) > 0 {
		ctx.inlineQoS = df.InlineQoS
	}

	start := uint32(df.FragmentStartingNum) - 1 // FragmentNumber is 1-based
	remaining := df.Payload
	for i := uint32(0); i < uint32(df.FragmentsInSubmessage); i++ {
		idx := start + i
		size := int(ctx.fragmentSize)
		if size > len(remaining) {
			size = len(remaining)
		}
		if size == 0 {
			break
		}
		ctx.received[idx] = append([]byte(nil), remaining[:size]...)
		remaining = remaining[size:]
	}

	totalFragments := (ctx.sampleSize + uint32(ctx.fragmentSize) - 1) / uint32(ctx.fragmentSize)
	if uint32(len(ctx.received)) < totalFragments {
		return false, nil, nil
	}

	payload := make([]byte, 0, ctx.sampleSize)
	for i := uint32(0); i < totalFragments; i++ {
		frag, ok := ctx.received[i]
		if !ok {
			return false, nil, nil
		}
		payload = append(payload, frag...)
	}
	delete(a.inFly, key)
	return true, payload, ctx.inlineQoS
}

// Pending reports how many reassembly contexts are in flight, a diagnostic
// hook for bounding memory use.
func (a *Reassembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFly)
}

// Missing returns the 0-based fragment indices not yet received for
// (writer, sn), ascending, or nil if there is no in-flight context (either
// never started or already completed). Used to drive NACK_FRAG on an
// incomplete reassembly (spec.md §4.6.3).
func (a *Reassembler) Missing(writer guid.Guid, sn guid.SequenceNumber) []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, ok := a.inFly[fragKey{writer: writer, sn: sn}]
	if !ok {
		return nil
	}
	total := (ctx.sampleSize + uint32(ctx.fragmentSize) - 1) / uint32(ctx.fragmentSize)
	var out []uint32
	for i := uint32(0); i < total; i++ {
		if _, have := ctx.received[i]; !have {
			out = append(out, i)
		}
	}
	return out
}
