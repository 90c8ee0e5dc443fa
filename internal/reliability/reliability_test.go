// Copyright 2024 The hdds Authors.

package reliability

import (
	"testing"
	"time"

	"github.com/hdds-io/hdds/internal/dispatch"
	"github.com/hdds-io/hdds/internal/history"
	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
)

func testGuid(b byte) guid.Guid {
	var g guid.Guid
	g.Prefix[0] = b
	g.EntityID = guid.EntityId{b, b, b, b}
	return g
}

func TestReaderProxyHandleAckNackClassifiesResendAndGap(t *testing.T) {
	rp := NewReaderProxy(testGuid(1), nil)

	present := map[guid.SequenceNumber]bool{1: true, 2: false, 3: true}
	req := rp.handleAckNack(1, 1, []guid.SequenceNumber{1, 2, 3}, func(seq guid.SequenceNumber) bool {
		return present[seq]
	})
	if req == nil {
		t.Fatal("handleAckNack returned nil for a fresh count")
	}
	if len(req.Resend) != 2 || len(req.Gap) != 1 {
		t.Fatalf("Resend=%v Gap=%v, want 2 resends and 1 gap", req.Resend, req.Gap)
	}
	if req.Gap[0] != 2 {
		t.Fatalf("Gap = %v, want [2]", req.Gap)
	}
}

func TestReaderProxyHandleAckNackDropsStaleCount(t *testing.T) {
	rp := NewReaderProxy(testGuid(1), nil)
	rp.HighestNackCount = 5

	req := rp.handleAckNack(5, 1, []guid.SequenceNumber{1}, func(guid.SequenceNumber) bool { return true })
	if req != nil {
		t.Fatal("handleAckNack should drop a count that is not greater than the last seen one")
	}
}

func TestReaderProxyAllowResendRateLimits(t *testing.T) {
	rp := NewReaderProxy(testGuid(1), nil)
	now := time.Now()

	if !rp.allowResend(2, now) || !rp.allowResend(2, now) {
		t.Fatal("first two resends within the window should be allowed")
	}
	if rp.allowResend(2, now) {
		t.Fatal("third resend within the same window should be rate limited")
	}
	if rp.State != StateCongested {
		t.Fatalf("State = %v, want StateCongested", rp.State)
	}

	if !rp.allowResend(2, now.Add(2*time.Second)) {
		t.Fatal("resend should be allowed again once the window rolls over")
	}
}

func TestReaderProxyCheckUnresponsive(t *testing.T) {
	rp := NewReaderProxy(testGuid(1), nil)
	rp.LastActivity = time.Now().Add(-time.Hour)

	rp.checkUnresponsive(time.Second, time.Now())
	if rp.State != StateUnresponsive {
		t.Fatalf("State = %v, want StateUnresponsive", rp.State)
	}
}

func TestWriterProxyHandleDataDeliversInOrder(t *testing.T) {
	wp := NewWriterProxy(testGuid(1), true, nil)
	var delivered []guid.SequenceNumber
	wp.OnDeliver = func(seq guid.SequenceNumber, _, _ []byte, _ bool) {
		delivered = append(delivered, seq)
	}

	wp.HandleData(2, nil, []byte("b"), false)
	wp.HandleData(1, nil, []byte("a"), false)
	wp.HandleData(4, nil, []byte("d"), false)
	wp.HandleData(3, nil, []byte("c"), false)

	if len(delivered) != 4 {
		t.Fatalf("delivered %v, want 4 in-order samples", delivered)
	}
	for i, seq := range delivered {
		if seq != guid.SequenceNumber(i+1) {
			t.Fatalf("delivered[%d] = %d, want %d", i, seq, i+1)
		}
	}
}

func TestWriterProxyHandleHeartbeatReportsMissingAndSchedulesAckNack(t *testing.T) {
	wp := NewWriterProxy(testGuid(1), true, nil)
	wp.HandleData(1, nil, []byte("a"), false)
	// 2 is missing.
	wp.HandleData(3, nil, []byte("c"), false)

	due, missing := wp.HandleHeartbeat(1, 1, 3)
	if !due {
		t.Fatal("HandleHeartbeat should report an ACKNACK as due when samples are missing")
	}
	if len(missing) != 1 || missing[0] != 2 {
		t.Fatalf("missing = %v, want [2]", missing)
	}
}

func TestWriterProxyHandleHeartbeatDropsStaleCount(t *testing.T) {
	wp := NewWriterProxy(testGuid(1), true, nil)
	wp.HandleHeartbeat(5, 1, 1)

	due, _ := wp.HandleHeartbeat(5, 1, 10)
	if due {
		t.Fatal("a heartbeat count that does not increase must be ignored")
	}
}

func TestWriterProxyHandleGapSurfacesNoSampleLostForGapRanges(t *testing.T) {
	wp := NewWriterProxy(testGuid(1), true, nil)
	var lost []guid.SequenceNumber
	wp.OnSampleLost = func(seq guid.SequenceNumber) { lost = append(lost, seq) }

	g := &rtps.Gap{
		GapStart: 1,
		GapList:  rtps.NewSequenceNumberSet(3, []guid.SequenceNumber{3, 4}),
	}
	wp.HandleGap(g)

	if len(lost) != 0 {
		t.Fatalf("SAMPLE_LOST should not fire for a GAP's own declared range, got %v", lost)
	}
	if wp.AckedUpTo != 4 {
		t.Fatalf("AckedUpTo = %d, want 4 after the whole gapped prefix is skipped", wp.AckedUpTo)
	}
}

func TestWriterProxyHandleHeartbeatSurfacesSampleLostPastFirst(t *testing.T) {
	wp := NewWriterProxy(testGuid(1), true, nil)
	var lost []guid.SequenceNumber
	wp.OnSampleLost = func(seq guid.SequenceNumber) { lost = append(lost, seq) }

	// The writer's HISTORY window already advanced past 1..3 without this
	// reader ever receiving them.
	wp.HandleHeartbeat(1, 4, 4)

	if len(lost) != 3 {
		t.Fatalf("lost = %v, want 3 entries for sequence numbers 1..3", lost)
	}
}

func TestWriterDeliverSatisfiesReaderSink(t *testing.T) {
	var _ dispatch.ReaderSink = NewWriterProxy(testGuid(1), true, nil)
}

func TestRegistryLookupResolvesWriterAndReaderSides(t *testing.T) {
	cache := history.NewCache(qos.Default())
	writerGUID := testGuid(1)
	readerGUID := testGuid(2)

	w := NewWriter(writerGUID, true, cache, nil, WriterOptions{})
	defer w.Close()
	rp := NewReaderProxy(readerGUID, nil)
	w.MatchReader(rp)

	r := NewReader(readerGUID, nil, WriterOptions{})
	defer r.Close()
	wp := NewWriterProxy(writerGUID, true, nil)
	r.MatchWriter(wp)

	reg := NewRegistry()
	reg.RegisterWriter(w)
	reg.RegisterReader(r)

	target, ok := reg.Lookup(writerGUID.EntityID, readerGUID.EntityID)
	if !ok {
		t.Fatal("Lookup should resolve a matched (writer, reader) pair")
	}

	// Exactly one side carries real behavior; feeding both submessage
	// families through the same target must not panic either way.
	target.HandleAckNack(&rtps.AckNack{ReaderID: readerGUID.EntityID, WriterID: writerGUID.EntityID, Count: 1})
	target.HandleHeartbeat(&rtps.Heartbeat{ReaderID: readerGUID.EntityID, WriterID: writerGUID.EntityID, Count: 1, FirstSN: 1, LastSN: 1})
}

func TestRegistryLookupMissingPairReportsNotFound(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Lookup(testGuid(9).EntityID, testGuid(10).EntityID); ok {
		t.Fatal("Lookup on an unmatched pair should report not-found")
	}
}
