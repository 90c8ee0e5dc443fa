// Copyright 2024 The hdds Authors.

package reliability

import (
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
)

// BuildDataFrags splits payload into a full run of DATA_FRAG submessages,
// one fragment per submessage, for a sample's initial send once it exceeds
// DefaultFragmentSize (spec.md §4.6.3). inlineQoS, if present, travels on
// fragment 1 only, mirroring how dispatch.Reassembler keeps whichever
// non-empty InlineQoS it sees.
func BuildDataFrags(readerID, writerID guid.EntityId, sn guid.SequenceNumber, payload []byte, fragmentSize int, inlineQoS []byte) []*rtps.DataFrag {
	total := totalFragments(uint32(len(payload)), fragmentSize)
	all := make([]guid.FragmentNumber, total)
	for i := uint32(0); i < total; i++ {
		all[i] = guid.FragmentNumber(i + 1)
	}
	return buildDataFrags(readerID, writerID, sn, payload, fragmentSize, inlineQoS, all)
}

// BuildDataFragRange re-slices payload into DATA_FRAG submessages covering
// only the given 1-based fragment numbers, for a targeted NACK_FRAG
// retransmission (spec.md §4.6.3): the writer never needs a separate
// per-fragment cache, since the history cache already retains the whole
// unfragmented sample.
func BuildDataFragRange(readerID, writerID guid.EntityId, sn guid.SequenceNumber, payload []byte, fragmentSize int, fragmentNumbers []guid.FragmentNumber) []*rtps.DataFrag {
	return buildDataFrags(readerID, writerID, sn, payload, fragmentSize, nil, fragmentNumbers)
}

func buildDataFrags(readerID, writerID guid.EntityId, sn guid.SequenceNumber, payload []byte, fragmentSize int, inlineQoS []byte, fragmentNumbers []guid.FragmentNumber) []*rtps.DataFrag {
	sampleSize := uint32(len(payload))

	frags := make([]*rtps.DataFrag, 0, len(fragmentNumbers))
	for _, fn := range fragmentNumbers {
		idx := uint32(fn) - 1
		lo := idx * uint32(fragmentSize)
		if lo >= sampleSize {
			continue
		}
		hi := lo + uint32(fragmentSize)
		if hi > sampleSize {
			hi = sampleSize
		}
		df := &rtps.DataFrag{
			ReaderID:              readerID,
			WriterID:              writerID,
			WriterSN:              sn,
			FragmentStartingNum:   fn,
			FragmentsInSubmessage: 1,
			FragmentSize:          uint16(fragmentSize),
			SampleSize:            sampleSize,
			Payload:               payload[lo:hi],
		}
		if fn == 1 {
			df.InlineQoS = inlineQoS
		}
		frags = append(frags, df)
	}
	return frags
}

func totalFragments(sampleSize uint32, fragmentSize int) uint32 {
	if fragmentSize <= 0 {
		return 0
	}
	return (sampleSize + uint32(fragmentSize) - 1) / uint32(fragmentSize)
}
