package dispatch

import (
	"bytes"
	"testing"

	"github.com/hdds-io/hdds/internal/rtps"
	"github.com/hdds-io/hdds/pkg/guid"
)

func testHeader() rtps.Header {
	var prefix guid.GuidPrefix
	copy(prefix[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	return rtps.Header{Magic: rtps.MagicRTPS, Version: rtps.DefaultProtocolVersion, Vendor: rtps.VendorIDHdds, GuidPrefix: prefix}
}

func TestClassifyRecognizesBuiltinAndUserData(t *testing.T) {
	spdpData := &rtps.Data{
		ReaderID: guid.EntityIDUnknown,
		WriterID: guid.EntityIDSPDPWriter,
		WriterSN: guid.SequenceNumber(1),
		Payload:  []byte("spdp-payload"),
	}
	userData := &rtps.Data{
		ReaderID: guid.EntityId{0, 0, 0, 0x04},
		WriterID: guid.EntityId{0, 0, 1, 0x02},
		WriterSN: guid.SequenceNumber(2),
		Payload:  []byte("user-payload"),
	}
	msg := &rtps.Message{
		Header: testHeader(),
		Items: []rtps.Item{
			{Kind: spdpData.Kind(), Body: spdpData},
			{Kind: userData.Kind(), Body: userData},
		},
	}
	raw := rtps.EncodeMessage(msg)

	c := &Classifier{LocalPrefix: testHeader().GuidPrefix}
	classified, err := c.Classify(raw)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(classified.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(classified.Items))
	}
	if classified.Items[0].Kind != KindSPDP {
		t.Fatalf("first item kind = %v, want KindSPDP", classified.Items[0].Kind)
	}
	if classified.Items[1].Kind != KindData {
		t.Fatalf("second item kind = %v, want KindData", classified.Items[1].Kind)
	}
}

type fakeReaderSink struct {
	got []byte
}

func (f *fakeReaderSink) Deliver(writerID guid.EntityId, sn guid.SequenceNumber, inlineQoS, payload []byte, keyOnly bool) {
	f.got = payload
}

type fakeReaderLookup struct {
	sink *fakeReaderSink
}

func (f *fakeReaderLookup) LookupByWriter(prefix guid.GuidPrefix, writer guid.EntityId) ([]ReaderSink, bool) {
	return []ReaderSink{f.sink}, true
}

func TestRouterDeliversDataToKnownReader(t *testing.T) {
	r := NewRouter(testHeader().GuidPrefix)
	sink := &fakeReaderSink{}
	r.Readers = &fakeReaderLookup{sink: sink}

	d := &rtps.Data{
		ReaderID: guid.EntityId{0, 0, 0, 0x04},
		WriterID: guid.EntityId{0, 0, 1, 0x02},
		WriterSN: guid.SequenceNumber(1),
		Payload:  []byte("payload-abc"),
	}
	msg := &rtps.Message{Header: testHeader(), Items: []rtps.Item{{Kind: d.Kind(), Body: d}}}
	raw := rtps.EncodeMessage(msg)

	c := &Classifier{LocalPrefix: testHeader().GuidPrefix}
	classified, err := c.Classify(raw)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	r.Route(testHeader().GuidPrefix, classified)

	if !bytes.Equal(sink.got, d.Payload) {
		t.Fatalf("delivered payload = %q, want %q", sink.got, d.Payload)
	}
}

func TestRouterDropsOutOfScopeInfoDST(t *testing.T) {
	r := NewRouter(testHeader().GuidPrefix)
	sink := &fakeReaderSink{}
	r.Readers = &fakeReaderLookup{sink: sink}

	other := [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	d := &rtps.Data{
		ReaderID: guid.EntityId{0, 0, 0, 0x04},
		WriterID: guid.EntityId{0, 0, 1, 0x02},
		WriterSN: guid.SequenceNumber(1),
		Payload:  []byte("scoped-elsewhere"),
	}
	tagged := Tagged{Kind: KindData, Item: rtps.Item{Kind: d.Kind(), Body: d, Context: rtps.Context{DestPrefix: &other}}}
	classified := &Classified{Header: testHeader(), Items: []Tagged{tagged}}

	r.Route(testHeader().GuidPrefix, classified)
	if sink.got != nil {
		t.Fatal("expected out-of-scope INFO_DST data to be dropped")
	}
	if r.DroppedOutOfScope() != 1 {
		t.Fatalf("DroppedOutOfScope = %d, want 1", r.DroppedOutOfScope())
	}
}

func TestReassemblerCompletesAcrossFragments(t *testing.T) {
	a := NewReassembler()
	var prefix guid.GuidPrefix
	writer := guid.EntityId{0, 0, 1, 0x02}

	full := bytes.Repeat([]byte{0xAB}, 20)
	frag1 := &rtps.DataFrag{
		WriterID: writer, WriterSN: guid.SequenceNumber(5),
		FragmentStartingNum: 1, FragmentsInSubmessage: 1, FragmentSize: 10, SampleSize: 20,
		Payload: full[:10],
	}
	frag2 := &rtps.DataFrag{
		WriterID: writer, WriterSN: guid.SequenceNumber(5),
		FragmentStartingNum: 2, FragmentsInSubmessage: 1, FragmentSize: 10, SampleSize: 20,
		Payload: full[10:],
	}

	complete, payload, _ := a.Add(prefix, frag1)
	if complete {
		t.Fatal("should not be complete after first fragment")
	}
	complete, payload, _ = a.Add(prefix, frag2)
	if !complete {
		t.Fatal("should be complete after second fragment")
	}
	if !bytes.Equal(payload, full) {
		t.Fatalf("reassembled payload = %x, want %x", payload, full)
	}
	if a.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after completion", a.Pending())
	}
}

func TestWriterGuidIndexRegisterLookupUnregister(t *testing.T) {
	idx := NewWriterGuidIndex()
	w := guid.Guid{EntityID: guid.EntityId{0, 0, 1, 0x02}}
	idx.Register(w, "my/topic")

	got, ok := idx.Lookup(w)
	if !ok || got != "my/topic" {
		t.Fatalf("Lookup = (%q, %v), want (\"my/topic\", true)", got, ok)
	}

	idx.Unregister(w)
	if _, ok := idx.Lookup(w); ok {
		t.Fatal("expected Lookup to miss after Unregister")
	}
}

func TestTopicMergerFastPathDeliversToAllReaders(t *testing.T) {
	m := NewTopicMerger("fast/topic")
	sub1 := m.Bind(4)
	sub2 := m.Bind(4)
	defer sub1.Close()
	defer sub2.Close()

	m.Push(IntraSample{WriterGUID: "w1", Payload: 42})

	select {
	case s := <-sub1.C:
		if s.Payload != 42 {
			t.Fatalf("sub1 got %v, want 42", s.Payload)
		}
	default:
		t.Fatal("sub1 expected a delivered sample")
	}
	select {
	case s := <-sub2.C:
		if s.Payload != 42 {
			t.Fatalf("sub2 got %v, want 42", s.Payload)
		}
	default:
		t.Fatal("sub2 expected a delivered sample")
	}

	delivered, dropped := m.Stats()
	if delivered != 2 || dropped != 0 {
		t.Fatalf("Stats() = (%d, %d), want (2, 0)", delivered, dropped)
	}
}

func TestTopicMergerSkipsClosedReaderInsteadOfBlocking(t *testing.T) {
	m := NewTopicMerger("fast/topic")
	sub := m.Bind(1)
	sub.Close()

	m.Push(IntraSample{Payload: 1}) // must not panic or block
}

func TestReceiveRingEvictsOldestNonDiscoveryOnOverflow(t *testing.T) {
	r := NewReceiveRing(2)
	r.Push(RawPacket{Data: []byte("a")})
	r.Push(RawPacket{Data: []byte("b")})
	r.Push(RawPacket{Data: []byte("c")}) // forces eviction of "a"

	first, ok := r.Pop()
	if !ok || string(first.Data) != "b" {
		t.Fatalf("first popped = %q, want %q", first.Data, "b")
	}
	if r.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", r.Dropped())
	}
}

func TestReceiveRingNeverEvictsDiscoveryTraffic(t *testing.T) {
	r := NewReceiveRing(1)
	r.Push(RawPacket{Data: []byte("spdp"), IsDiscovery: true})
	r.Push(RawPacket{Data: []byte("user-data")}) // should be dropped, not the discovery packet

	p, ok := r.Pop()
	if !ok || string(p.Data) != "spdp" {
		t.Fatalf("popped = %q, want %q (discovery packet preserved)", p.Data, "spdp")
	}
	if r.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", r.Dropped())
	}
}
