package cdr

import "fmt"

// Reader parses values out of a buffer previously produced by Writer (or by
// a remote RTPS peer), tracking alignment the same way Writer does.
type Reader struct {
	enc Encapsulation
	buf []byte // remaining payload, header already stripped
	pos int    // offset from the encapsulation origin (start of buf)
}

// NewReader decodes the 4-byte encapsulation header and returns a Reader
// positioned at the start of the payload.
func NewReader(raw []byte) (*Reader, error) {
	enc, payload, err := DecodeEncapsulation(raw)
	if err != nil {
		return nil, err
	}
	return &Reader{enc: enc, buf: payload}, nil
}

// Encapsulation returns the reader's encapsulation kind.
func (r *Reader) Encapsulation() Encapsulation { return r.enc }

// Remaining returns the number of unread payload bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) align(n int) error {
	if n <= 1 {
		return nil
	}
	pad := (n - r.pos%n) % n
	if r.pos+pad > len(r.buf) {
		return ErrTruncated
	}
	for i := 0; i < pad; i++ {
		if r.buf[r.pos+i] != 0 {
			return fmt.Errorf("%w: non-zero alignment padding", ErrAlignmentViolation)
		}
	}
	r.pos += pad
	return nil
}

func (r *Reader) getUint(size int) (uint64, error) {
	if err := r.align(size); err != nil {
		return 0, err
	}
	if r.pos+size > len(r.buf) {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+size]
	var v uint64
	if r.enc.LittleEndian() {
		for i := size - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	} else {
		for i := 0; i < size; i++ {
			v = v<<8 | uint64(b[i])
		}
	}
	r.pos += size
	return v, nil
}

// ReadU8 reads an unaligned octet.
func (r *Reader) ReadU8() (uint8, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrTruncated
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadBool reads a single octet, treating any nonzero value as true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	return v != 0, err
}

// ReadU16 reads a 2-byte-aligned unsigned short.
func (r *Reader) ReadU16() (uint16, error) {
	v, err := r.getUint(2)
	return uint16(v), err
}

// ReadU32 reads a 4-byte-aligned unsigned long.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.getUint(4)
	return uint32(v), err
}

// ReadU64 reads an 8-byte-aligned unsigned long long.
func (r *Reader) ReadU64() (uint64, error) {
	return r.getUint(8)
}

// ReadI16 reads a 2-byte-aligned signed short.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.getUint(2)
	return int16(v), err
}

// ReadI32 reads a 4-byte-aligned signed long.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.getUint(4)
	return int32(v), err
}

// ReadI64 reads an 8-byte-aligned signed long long.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.getUint(8)
	return int64(v), err
}

// ReadF32 reads a 4-byte-aligned IEEE-754 single.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.getUint(4)
	return float32frombits(uint32(v)), err
}

// ReadF64 reads an 8-byte-aligned IEEE-754 double.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.getUint(8)
	return float64frombits(v), err
}

// ReadRaw reads n unaligned, unprefixed bytes.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadString reads a 4-byte length followed by that many NUL-terminated
// UTF-8 bytes, returning the string without its trailing NUL.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("%w: zero-length CDR string (missing NUL)", ErrInvalidEncoding)
	}
	b, err := r.ReadRaw(int(n))
	if err != nil {
		return "", err
	}
	return string(b[:len(b)-1]), nil
}

// ReadSequenceHeader reads the 4-byte element count preceding a sequence.
func (r *Reader) ReadSequenceHeader() (int, error) {
	n, err := r.ReadU32()
	return int(n), err
}
