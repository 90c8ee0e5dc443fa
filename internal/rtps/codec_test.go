package rtps

import (
	"bytes"
	"testing"

	"github.com/hdds-io/hdds/pkg/guid"
)

func testHeader() Header {
	var prefix guid.GuidPrefix
	copy(prefix[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	return Header{
		Magic:      MagicRTPS,
		Version:    DefaultProtocolVersion,
		Vendor:     VendorIDHdds,
		GuidPrefix: prefix,
	}
}

func entityID(b0, b1, b2, b3 byte) guid.EntityId {
	return guid.EntityId{b0, b1, b2, b3}
}

func TestHeaderRoundTripBothMagics(t *testing.T) {
	for _, magic := range [][4]byte{MagicRTPS, MagicRTPX} {
		h := testHeader()
		h.Magic = magic
		buf := EncodeHeader(h)
		if len(buf) != HeaderLen {
			t.Fatalf("encoded header length = %d, want %d", len(buf), HeaderLen)
		}
		got, rest, err := DecodeHeader(buf)
		if err != nil {
			t.Fatalf("DecodeHeader(%v): %v", magic, err)
		}
		if got != h {
			t.Fatalf("DecodeHeader round trip mismatch: got %+v, want %+v", got, h)
		}
		if len(rest) != 0 {
			t.Fatalf("expected no remainder, got %d bytes", len(rest))
		}
	}
}

func TestDecodeHeaderRejectsUnknownMagic(t *testing.T) {
	h := testHeader()
	buf := EncodeHeader(h)
	buf[0] = 'X'
	if _, _, err := DecodeHeader(buf); err == nil {
		t.Fatal("expected error for unrecognized magic")
	}
}

func roundTripMessage(t *testing.T, little bool, body Body) Item {
	t.Helper()
	msg := &Message{
		Header: testHeader(),
		Items: []Item{
			{Kind: body.Kind(), Body: body, Context: Context{LittleEndian: little}},
		},
	}
	raw := EncodeMessage(msg)
	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if len(decoded.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(decoded.Items))
	}
	return decoded.Items[0]
}

func TestDataRoundTrip(t *testing.T) {
	for _, little := range []bool{true, false} {
		d := &Data{
			ReaderID: entityID(0, 0, 0, 0x04),
			WriterID: entityID(0, 0, 1, 0x02),
			WriterSN: guid.SequenceNumber(42),
			Payload:  []byte("hello sample"),
		}
		item := roundTripMessage(t, little, d)
		got, ok := item.Body.(*Data)
		if !ok {
			t.Fatalf("decoded body is %T, want *Data", item.Body)
		}
		if got.ReaderID != d.ReaderID || got.WriterID != d.WriterID || got.WriterSN != d.WriterSN {
			t.Fatalf("Data identity fields mismatch: got %+v, want %+v", got, d)
		}
		if !bytes.Equal(got.Payload, d.Payload) {
			t.Fatalf("Data payload mismatch: got %q, want %q", got.Payload, d.Payload)
		}
		if got.KeyOnly {
			t.Fatal("KeyOnly should be false for a full-sample DATA")
		}
	}
}

func TestDataKeyOnlyFlagIsExclusive(t *testing.T) {
	d := &Data{
		ReaderID: entityID(0, 0, 0, 0x04),
		WriterID: entityID(0, 0, 1, 0x02),
		WriterSN: guid.SequenceNumber(7),
		Payload:  []byte("key-bytes"),
		KeyOnly:  true,
	}
	item := roundTripMessage(t, true, d)
	got := item.Body.(*Data)
	if !got.KeyOnly {
		t.Fatal("expected KeyOnly to round-trip true")
	}
	if !bytes.Equal(got.Payload, d.Payload) {
		t.Fatalf("key-only payload mismatch: got %q, want %q", got.Payload, d.Payload)
	}
}

func TestDataFragRoundTrip(t *testing.T) {
	d := &DataFrag{
		ReaderID:              entityID(0, 0, 0, 0x04),
		WriterID:              entityID(0, 0, 1, 0x02),
		WriterSN:              guid.SequenceNumber(100),
		FragmentStartingNum:   guid.FragmentNumber(3),
		FragmentsInSubmessage: 2,
		FragmentSize:          1024,
		SampleSize:            4096,
		Payload:               bytes.Repeat([]byte{0xAB}, 2048),
	}
	item := roundTripMessage(t, false, d)
	got := item.Body.(*DataFrag)
	if got.FragmentStartingNum != d.FragmentStartingNum || got.SampleSize != d.SampleSize {
		t.Fatalf("DataFrag fragmentation fields mismatch: got %+v, want %+v", got, d)
	}
	if !bytes.Equal(got.Payload, d.Payload) {
		t.Fatal("DataFrag payload mismatch")
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	h := &Heartbeat{
		ReaderID:   entityID(0, 0, 0, 0x04),
		WriterID:   entityID(0, 0, 1, 0x02),
		FirstSN:    guid.SequenceNumber(1),
		LastSN:     guid.SequenceNumber(99),
		Count:      5,
		Final:      true,
		Liveliness: false,
	}
	item := roundTripMessage(t, true, h)
	got := item.Body.(*Heartbeat)
	if *got != *h {
		t.Fatalf("Heartbeat round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeartbeatFragRoundTrip(t *testing.T) {
	h := &HeartbeatFrag{
		ReaderID:        entityID(0, 0, 0, 0x04),
		WriterID:        entityID(0, 0, 1, 0x02),
		WriterSN:        guid.SequenceNumber(55),
		LastFragmentNum: guid.FragmentNumber(10),
		Count:           3,
	}
	item := roundTripMessage(t, false, h)
	got := item.Body.(*HeartbeatFrag)
	if *got != *h {
		t.Fatalf("HeartbeatFrag round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestAckNackRoundTrip(t *testing.T) {
	a := &AckNack{
		ReaderID: entityID(0, 0, 0, 0x04),
		WriterID: entityID(0, 0, 1, 0x02),
		Bitmap:   NewSequenceNumberSet(guid.SequenceNumber(10), []guid.SequenceNumber{10, 12, 15}),
		Count:    2,
		Final:    true,
	}
	item := roundTripMessage(t, true, a)
	got := item.Body.(*AckNack)
	if got.ReaderID != a.ReaderID || got.WriterID != a.WriterID || got.Count != a.Count || got.Final != a.Final {
		t.Fatalf("AckNack identity fields mismatch: got %+v, want %+v", got, a)
	}
	wantMembers := a.Bitmap.Members()
	gotMembers := got.Bitmap.Members()
	if len(wantMembers) != len(gotMembers) {
		t.Fatalf("AckNack bitmap member count mismatch: got %v, want %v", gotMembers, wantMembers)
	}
	for i := range wantMembers {
		if wantMembers[i] != gotMembers[i] {
			t.Fatalf("AckNack bitmap member[%d] mismatch: got %v, want %v", i, gotMembers[i], wantMembers[i])
		}
	}
}

func TestNackFragRoundTrip(t *testing.T) {
	n := &NackFrag{
		ReaderID: entityID(0, 0, 0, 0x04),
		WriterID: entityID(0, 0, 1, 0x02),
		WriterSN: guid.SequenceNumber(77),
		Bitmap:   NewFragmentNumberSet(guid.FragmentNumber(1), []guid.FragmentNumber{1, 3}),
		Count:    1,
	}
	item := roundTripMessage(t, false, n)
	got := item.Body.(*NackFrag)
	if got.WriterSN != n.WriterSN || got.Count != n.Count {
		t.Fatalf("NackFrag identity fields mismatch: got %+v, want %+v", got, n)
	}
	gotMembers := got.Bitmap.Members()
	wantMembers := n.Bitmap.Members()
	if len(gotMembers) != len(wantMembers) || gotMembers[0] != wantMembers[0] {
		t.Fatalf("NackFrag bitmap mismatch: got %v, want %v", gotMembers, wantMembers)
	}
}

func TestGapRoundTrip(t *testing.T) {
	g := &Gap{
		ReaderID: entityID(0, 0, 0, 0x04),
		WriterID: entityID(0, 0, 1, 0x02),
		GapStart: guid.SequenceNumber(20),
		GapList:  NewSequenceNumberSet(guid.SequenceNumber(20), []guid.SequenceNumber{20, 21}),
	}
	item := roundTripMessage(t, true, g)
	got := item.Body.(*Gap)
	if got.GapStart != g.GapStart {
		t.Fatalf("Gap.GapStart mismatch: got %v, want %v", got.GapStart, g.GapStart)
	}
	if len(got.GapList.Members()) != len(g.GapList.Members()) {
		t.Fatal("Gap.GapList member count mismatch")
	}
}

func TestInfoTSRoundTripValidAndInvalid(t *testing.T) {
	valid := &InfoTS{Valid: true, Seconds: 1700000000, Fraction: 123456}
	item := roundTripMessage(t, true, valid)
	got := item.Body.(*InfoTS)
	if *got != *valid {
		t.Fatalf("InfoTS valid round trip mismatch: got %+v, want %+v", got, valid)
	}

	invalid := &InfoTS{Valid: false}
	item2 := roundTripMessage(t, false, invalid)
	got2 := item2.Body.(*InfoTS)
	if got2.Valid {
		t.Fatal("expected invalidated InfoTS to decode with Valid=false")
	}
}

func TestInfoTSContextCarriesToFollowingData(t *testing.T) {
	ts := &InfoTS{Valid: true, Seconds: 5, Fraction: 6}
	d := &Data{
		ReaderID: entityID(0, 0, 0, 0x04),
		WriterID: entityID(0, 0, 1, 0x02),
		WriterSN: guid.SequenceNumber(1),
		Payload:  []byte("x"),
	}
	msg := &Message{
		Header: testHeader(),
		Items: []Item{
			{Kind: ts.Kind(), Body: ts, Context: Context{LittleEndian: true}},
			{Kind: d.Kind(), Body: d, Context: Context{LittleEndian: true}},
		},
	}
	raw := EncodeMessage(msg)
	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if len(decoded.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(decoded.Items))
	}
	carried := decoded.Items[1].Context.Timestamp
	if carried == nil || carried.Seconds != ts.Seconds || carried.Fraction != ts.Fraction {
		t.Fatalf("expected DATA to carry the preceding INFO_TS, got %+v", carried)
	}
}

func TestInfoDSTRoundTripAndContextCarry(t *testing.T) {
	i := &InfoDST{}
	copy(i.GuidPrefix[:], []byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 11, 12})
	item := roundTripMessage(t, false, i)
	got := item.Body.(*InfoDST)
	if got.GuidPrefix != i.GuidPrefix {
		t.Fatalf("InfoDST round trip mismatch: got %+v, want %+v", got, i)
	}

	d := &Data{
		ReaderID: entityID(0, 0, 0, 0x04),
		WriterID: entityID(0, 0, 1, 0x02),
		WriterSN: guid.SequenceNumber(1),
	}
	msg := &Message{
		Header: testHeader(),
		Items: []Item{
			{Kind: i.Kind(), Body: i, Context: Context{LittleEndian: false}},
			{Kind: d.Kind(), Body: d, Context: Context{LittleEndian: false}},
		},
	}
	raw := EncodeMessage(msg)
	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	carried := decoded.Items[1].Context.DestPrefix
	if carried == nil || *carried != i.GuidPrefix {
		t.Fatalf("expected DATA to carry the preceding INFO_DST prefix, got %+v", carried)
	}
}

func TestUnknownSubmessageIsToleratedNotError(t *testing.T) {
	msg := &Message{Header: testHeader()}
	raw := EncodeMessage(msg)

	// Append a vendor-specific submessage (id >= VendorSubmessageThreshold)
	// by hand: id, flags, 2-byte length (LE), then 4 bytes of payload.
	vendor := []byte{0x90, flagLittleEndian, 0x04, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	raw = append(raw, vendor...)

	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage should tolerate vendor submessage ids, got error: %v", err)
	}
	if len(decoded.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(decoded.Items))
	}
	u, ok := decoded.Items[0].Body.(*Unknown)
	if !ok {
		t.Fatalf("expected *Unknown body, got %T", decoded.Items[0].Body)
	}
	if u.RawKind != 0x90 {
		t.Fatalf("Unknown.RawKind = %#x, want 0x90", byte(u.RawKind))
	}
	if !bytes.Equal(u.Payload, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("Unknown.Payload = %x, want deadbeef", u.Payload)
	}
}

func TestDecodeMessageRejectsTruncatedSubmessageHeader(t *testing.T) {
	msg := &Message{Header: testHeader()}
	raw := EncodeMessage(msg)
	raw = append(raw, 0x15, 0x01) // two stray bytes, less than a full submessage header
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatal("expected error for truncated trailing submessage header")
	}
}
