// Copyright 2024 The hdds Authors.

package history

import (
	"bytes"
	"testing"

	"github.com/hdds-io/hdds/internal/qos"
	"github.com/hdds-io/hdds/pkg/guid"
)

func TestAppendAssignsMonotonicSequenceNumbers(t *testing.T) {
	c := NewCache(qos.Default())
	sn1 := c.Append(nil, []byte("a"), false)
	sn2 := c.Append(nil, []byte("b"), false)
	if sn2 <= sn1 {
		t.Fatalf("sn2 (%d) should be greater than sn1 (%d)", sn2, sn1)
	}
}

func TestGetReturnsStoredSample(t *testing.T) {
	c := NewCache(qos.Default())
	c.policy.History = qos.KeepAll
	sn := c.Append(nil, []byte("payload"), false)

	s, ok := c.Get(sn)
	if !ok {
		t.Fatalf("Get(%d) missing", sn)
	}
	if !bytes.Equal(s.Payload, []byte("payload")) {
		t.Fatalf("Get payload = %q, want %q", s.Payload, "payload")
	}

	if _, ok := c.Get(sn + 100); ok {
		t.Fatal("Get on an unknown sequence number should miss")
	}
}

func TestRangeReturnsAscendingSubset(t *testing.T) {
	c := NewCache(qos.Default())
	c.policy.History = qos.KeepAll
	var sns []guid.SequenceNumber
	for i := 0; i < 5; i++ {
		sns = append(sns, c.Append(nil, []byte{byte(i)}, false))
	}

	out := c.Range(sns[1], sns[3])
	if len(out) != 3 {
		t.Fatalf("Range returned %d samples, want 3", len(out))
	}
	for i, s := range out {
		if s.SequenceNumber != sns[1+i] {
			t.Fatalf("Range[%d].SequenceNumber = %d, want %d", i, s.SequenceNumber, sns[1+i])
		}
	}
}

func TestKeepLastEvictsOldestRegardlessOfAckState(t *testing.T) {
	p := qos.Default()
	p.History = qos.KeepLast
	p.HistoryDepth = 2
	c := NewCache(p)

	c.Append(nil, []byte("1"), false)
	c.Append(nil, []byte("2"), false)
	sn3 := c.Append(nil, []byte("3"), false)

	if n := len(c.samples); n != 2 {
		t.Fatalf("cache holds %d samples, want 2 (keep_last(2) hard cap)", n)
	}
	if _, ok := c.Get(sn3); !ok {
		t.Fatal("most recent sample should survive keep_last(2) truncation")
	}
}

func TestVolatileEvictsOnceAllReadersAck(t *testing.T) {
	p := qos.Default()
	p.History = qos.KeepAll
	p.Durability = qos.Volatile
	c := NewCache(p)

	sn1 := c.Append(nil, []byte("1"), false)
	sn2 := c.Append(nil, []byte("2"), false)

	reader := guid.Guid{EntityID: guid.EntityId{0, 0, 1, 0x02}}
	c.AdvanceAcked(reader, sn2)

	if _, ok := c.Get(sn1); ok {
		t.Fatal("sample below every matched reader's acked_up_to should be evicted under Volatile durability")
	}
	if _, ok := c.Get(sn2); !ok {
		t.Fatal("sample at acked_up_to should still be retained")
	}
}

func TestTransientLocalRetainsWindowDespiteAcks(t *testing.T) {
	p := qos.Default()
	p.History = qos.KeepLast
	p.HistoryDepth = 5
	p.Durability = qos.TransientLocal
	c := NewCache(p)

	sn1 := c.Append(nil, []byte("1"), false)
	reader := guid.Guid{EntityID: guid.EntityId{0, 0, 1, 0x02}}
	c.AdvanceAcked(reader, sn1)

	if _, ok := c.Get(sn1); !ok {
		t.Fatal("TRANSIENT_LOCAL writer must retain acked samples within its HISTORY window for late joiners")
	}
}

func TestResourceLimitsBoundKeepAll(t *testing.T) {
	p := qos.Default()
	p.History = qos.KeepAll
	p.ResourceLimits.MaxSamples = 3
	c := NewCache(p)

	var last guid.SequenceNumber
	for i := 0; i < 10; i++ {
		last = c.Append(nil, []byte{byte(i)}, false)
	}

	if n := len(c.samples); n != 3 {
		t.Fatalf("cache holds %d samples, want 3 (resource_limits.max_samples)", n)
	}
	if _, ok := c.Get(last); !ok {
		t.Fatal("most recent sample should survive resource_limits truncation")
	}
}

func TestUnmatchStopsHoldingBackEviction(t *testing.T) {
	p := qos.Default()
	p.History = qos.KeepAll
	c := NewCache(p)

	sn1 := c.Append(nil, []byte("1"), false)
	reader := guid.Guid{EntityID: guid.EntityId{0, 0, 1, 0x02}}
	c.AdvanceAcked(reader, 0) // never acked sn1, holds eviction back
	caughtUp := guid.Guid{EntityID: guid.EntityId{0, 0, 2, 0x02}}
	c.AdvanceAcked(caughtUp, sn1+1) // already past sn1

	if _, ok := c.Get(sn1); !ok {
		t.Fatal("sample should still be retained while the reader has not acked it")
	}

	c.Unmatch(reader)
	if _, ok := c.Get(sn1); ok {
		t.Fatal("sample should be eligible for eviction once the only holding reader unmatches")
	}
}

func TestDisposeRemovesRange(t *testing.T) {
	c := NewCache(qos.Default())
	c.policy.History = qos.KeepAll
	sn1 := c.Append(nil, []byte("1"), false)
	sn2 := c.Append(nil, []byte("2"), false)
	sn3 := c.Append(nil, []byte("3"), false)

	c.Dispose(sn1, sn2)

	if _, ok := c.Get(sn1); ok {
		t.Fatal("sn1 should have been disposed")
	}
	if _, ok := c.Get(sn2); ok {
		t.Fatal("sn2 should have been disposed")
	}
	if _, ok := c.Get(sn3); !ok {
		t.Fatal("sn3 is outside the disposed range and should remain")
	}
}

func TestFirstAndLastSequenceNumber(t *testing.T) {
	c := NewCache(qos.Default())
	if c.FirstSequenceNumber() != 0 || c.LastSequenceNumber() != 0 {
		t.Fatal("empty cache should report 0 for both First and Last")
	}
	c.policy.History = qos.KeepAll
	sn1 := c.Append(nil, []byte("1"), false)
	sn2 := c.Append(nil, []byte("2"), false)

	if c.FirstSequenceNumber() != sn1 {
		t.Fatalf("FirstSequenceNumber = %d, want %d", c.FirstSequenceNumber(), sn1)
	}
	if c.LastSequenceNumber() != sn2 {
		t.Fatalf("LastSequenceNumber = %d, want %d", c.LastSequenceNumber(), sn2)
	}
}

func TestExportImportSnapshotRoundTrip(t *testing.T) {
	p := qos.Default()
	p.History = qos.KeepAll
	src := NewCache(p)
	src.Append([]byte("qos-1"), []byte("payload-1"), false)
	src.Append(nil, []byte("payload-2"), true)

	blob, err := src.ExportSnapshot()
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("ExportSnapshot returned an empty blob")
	}

	dst := NewCache(qos.Default())
	if err := dst.ImportSnapshot(blob); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}

	if dst.FirstSequenceNumber() != src.FirstSequenceNumber() {
		t.Fatalf("imported FirstSequenceNumber = %d, want %d", dst.FirstSequenceNumber(), src.FirstSequenceNumber())
	}
	if dst.LastSequenceNumber() != src.LastSequenceNumber() {
		t.Fatalf("imported LastSequenceNumber = %d, want %d", dst.LastSequenceNumber(), src.LastSequenceNumber())
	}

	s, ok := dst.Get(src.LastSequenceNumber())
	if !ok {
		t.Fatal("imported cache missing the last sample")
	}
	if !bytes.Equal(s.Payload, []byte("payload-2")) || !s.KeyOnly {
		t.Fatalf("imported sample = %+v, want payload-2/KeyOnly", s)
	}

	sn := dst.Append(nil, []byte("payload-3"), false)
	if sn <= src.LastSequenceNumber() {
		t.Fatalf("Append after import assigned sn %d, should continue past imported sequence numbers", sn)
	}
}
