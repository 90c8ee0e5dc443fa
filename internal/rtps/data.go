package rtps

import (
	"encoding/binary"
	"fmt"

	"github.com/hdds-io/hdds/pkg/guid"
)

const (
	flagInlineQos = 1 << 1
	flagDataFlag  = 1 << 2
	flagKeyFlag   = 1 << 3
)

// Data carries one sample (spec.md §4.2).
type Data struct {
	ReaderID   guid.EntityId
	WriterID   guid.EntityId
	WriterSN   guid.SequenceNumber
	InlineQoS  []byte // raw PL_CDR-encoded parameter list, optional
	Payload    []byte // serialized (CDR-encapsulated) sample, optional
	KeyOnly    bool   // Payload represents only the key, not the full sample
}

func (d *Data) Kind() Kind { return KindData }

func (d *Data) encode(little bool) (byte, []byte) {
	var flags byte
	order := orderFor(little)

	buf := make([]byte, 4)
	// octets 0-1 reserved/extraFlags in the OMG layout; unused here.
	binary.BigEndian.PutUint16(buf[2:4], 0) // octetsToInlineQos stays 0; decodeData skips it
	body := make([]byte, 0, 64)
	body = append(body, buf...)
	body = append(body, d.ReaderID[:]...)
	body = append(body, d.WriterID[:]...)
	snBuf := make([]byte, 8)
	encodeSequenceNumber(order, snBuf, d.WriterSN)
	body = append(body, snBuf...)

	if len(d.InlineQoS) > 0 {
		flags |= flagInlineQos
		body = append(body, d.InlineQoS...)
	}
	if d.KeyOnly {
		flags |= flagKeyFlag
	} else if len(d.Payload) > 0 {
		flags |= flagDataFlag
	}
	body = append(body, d.Payload...)

	return flags, body
}

func decodeData(flags byte, payload []byte, order binary.ByteOrder) (*Data, error) {
	if len(payload) < 4+4+4+8 {
		return nil, fmt.Errorf("rtps: DATA truncated")
	}
	d := &Data{}
	off := 4 // extraFlags + octetsToInlineQos
	copy(d.ReaderID[:], payload[off:off+4])
	off += 4
	copy(d.WriterID[:], payload[off:off+4])
	off += 4
	d.WriterSN = decodeSequenceNumber(order, payload[off:off+8])
	off += 8

	rest := payload[off:]
	if flags&flagInlineQos != 0 {
		// InlineQoS is a PL_CDR parameter list; since we do not know its
		// encoded length ahead of time without parsing it, hand the
		// remainder to the cdr package's caller via a raw capture: we
		// scan for the sentinel ourselves using the shared encoding.
		n, err := scanParameterListLength(rest, order)
		if err != nil {
			return nil, err
		}
		d.InlineQoS = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
	}
	d.KeyOnly = flags&flagKeyFlag != 0
	if flags&flagDataFlag != 0 || flags&flagKeyFlag != 0 {
		d.Payload = append([]byte(nil), rest...)
	}
	return d, nil
}

// scanParameterListLength finds how many bytes of buf make up a parameter
// list (id,length,value...)* terminated by the sentinel, without fully
// decoding the values. This lets the RTPS codec treat inline QoS as an
// opaque span that internal/cdr can parse independently.
func scanParameterListLength(buf []byte, order binary.ByteOrder) (int, error) {
	pos := 0
	for {
		if pos+4 > len(buf) {
			return 0, fmt.Errorf("rtps: truncated inline QoS parameter list")
		}
		id := order.Uint16(buf[pos : pos+2])
		length := int(order.Uint16(buf[pos+2 : pos+4]))
		pos += 4
		if id == 0x0001 { // sentinel
			return pos, nil
		}
		if pos+length > len(buf) {
			return 0, fmt.Errorf("rtps: truncated inline QoS parameter value")
		}
		pos += length
	}
}

// DataFrag carries one fragment of a large sample (spec.md §4.2, §4.6.3).
type DataFrag struct {
	ReaderID              guid.EntityId
	WriterID              guid.EntityId
	WriterSN              guid.SequenceNumber
	FragmentStartingNum   guid.FragmentNumber
	FragmentsInSubmessage uint16
	FragmentSize          uint16
	SampleSize            uint32
	InlineQoS             []byte
	Payload               []byte
}

func (d *DataFrag) Kind() Kind { return KindDataFrag }

func (d *DataFrag) encode(little bool) (byte, []byte) {
	var flags byte
	order := orderFor(little)

	body := make([]byte, 4)
	body = append(body, d.ReaderID[:]...)
	body = append(body, d.WriterID[:]...)
	snBuf := make([]byte, 8)
	encodeSequenceNumber(order, snBuf, d.WriterSN)
	body = append(body, snBuf...)

	fragHdr := make([]byte, 12)
	order.PutUint32(fragHdr[0:4], uint32(d.FragmentStartingNum))
	order.PutUint16(fragHdr[4:6], d.FragmentsInSubmessage)
	order.PutUint16(fragHdr[6:8], d.FragmentSize)
	order.PutUint32(fragHdr[8:12], d.SampleSize)
	body = append(body, fragHdr...)

	if len(d.InlineQoS) > 0 {
		flags |= flagInlineQos
		body = append(body, d.InlineQoS...)
	}
	body = append(body, d.Payload...)
	return flags, body
}

func decodeDataFrag(flags byte, payload []byte, order binary.ByteOrder) (*DataFrag, error) {
	if len(payload) < 4+4+4+8+12 {
		return nil, fmt.Errorf("rtps: DATA_FRAG truncated")
	}
	d := &DataFrag{}
	off := 4
	copy(d.ReaderID[:], payload[off:off+4])
	off += 4
	copy(d.WriterID[:], payload[off:off+4])
	off += 4
	d.WriterSN = decodeSequenceNumber(order, payload[off:off+8])
	off += 8
	d.FragmentStartingNum = guid.FragmentNumber(order.Uint32(payload[off : off+4]))
	off += 4
	d.FragmentsInSubmessage = order.Uint16(payload[off : off+2])
	off += 2
	d.FragmentSize = order.Uint16(payload[off : off+2])
	off += 2
	d.SampleSize = order.Uint32(payload[off : off+4])
	off += 4

	rest := payload[off:]
	if flags&flagInlineQos != 0 {
		n, err := scanParameterListLength(rest, order)
		if err != nil {
			return nil, err
		}
		d.InlineQoS = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
	}
	d.Payload = append([]byte(nil), rest...)
	return d, nil
}

func orderFor(little bool) binary.ByteOrder {
	if little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
