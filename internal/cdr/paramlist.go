package cdr

import "fmt"

// SentinelID terminates a parameter list (spec.md §4.1).
const SentinelID uint16 = 0x0001

// VendorPIDBit marks a vendor-specific parameter id (bit 15 set); such
// parameters are preserved rather than discarded (spec.md §4.7.4).
const VendorPIDBit uint16 = 0x8000

// Parameter is one (id, value) pair of a parameter list.
type Parameter struct {
	ID    uint16
	Value []byte
}

// IsVendorSpecific reports whether this parameter's id has the
// vendor-specific bit set.
func (p Parameter) IsVendorSpecific() bool { return p.ID&VendorPIDBit != 0 }

// WriteParameter appends one parameter: a 2-byte id, a 2-byte length (the
// padded length of Value, always a multiple of 4), then Value itself
// zero-padded to that length (spec.md §4.1).
func (w *Writer) WriteParameter(id uint16, value []byte) {
	padded := (len(value) + 3) &^ 3
	w.WriteU16(id)
	w.WriteU16(uint16(padded))
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, padded)...)
	copy(w.buf[start:], value)
}

// WriteSentinel terminates the parameter list with the id/length-0 sentinel.
func (w *Writer) WriteSentinel() {
	w.WriteU16(SentinelID)
	w.WriteU16(0)
}

// ReadParameterList reads parameters until the sentinel (or end of buffer)
// and returns them in wire order. An empty list (sentinel only) is legal
// and yields a nil slice, per spec.md §8.
func (r *Reader) ReadParameterList() ([]Parameter, error) {
	var params []Parameter
	for {
		if r.Remaining() == 0 {
			return params, nil
		}
		id, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		length, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if id == SentinelID {
			if length != 0 {
				return nil, fmt.Errorf("%w: sentinel with nonzero length %d", ErrInvalidEncoding, length)
			}
			return params, nil
		}
		value, err := r.ReadRaw(int(length))
		if err != nil {
			return nil, err
		}
		// Copy out: value aliases r.buf, which the caller may reuse.
		cp := make([]byte, len(value))
		copy(cp, value)
		params = append(params, Parameter{ID: id, Value: cp})
	}
}

// Find returns the first parameter with the given id.
func Find(params []Parameter, id uint16) (Parameter, bool) {
	for _, p := range params {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}
