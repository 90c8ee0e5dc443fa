// Copyright 2024 The hdds Authors.

package history

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hdds-io/hdds/pkg/guid"
)

// ExportSnapshot serializes the cache's currently retained samples (the
// TRANSIENT_LOCAL replay window, typically) into a zstd-compressed blob
// for a cold-path consumer: handing a late joiner's replay set to an
// external SampleStore cache-warmer, or a diagnostic dump on operator
// request. This never runs on the hot path; the wire codec used elsewhere
// (internal/cdr, internal/rtps) is not involved, since nothing here needs
// to interoperate with another vendor's participant.
func (c *Cache) ExportSnapshot() ([]byte, error) {
	c.mu.Lock()
	samples := make([]Sample, len(c.samples))
	copy(samples, c.samples)
	c.mu.Unlock()

	var raw bytes.Buffer
	if err := encodeSnapshot(&raw, samples); err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw.Bytes(), nil), nil
}

// ImportSnapshot replaces the cache's contents with a previously exported
// snapshot, used when a SampleStore cache-warmer seeds a writer on
// restart. It does not touch ack-tracking state: readers that matched
// before the restart must still re-send their acks.
func (c *Cache) ImportSnapshot(blob []byte) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return err
	}
	samples, err := decodeSnapshot(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = samples
	if n := len(samples); n > 0 {
		last := samples[n-1].SequenceNumber
		if last >= c.nextSN {
			c.nextSN = last.Next()
		}
	}
	return nil
}

func encodeSnapshot(w *bytes.Buffer, samples []Sample) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(samples))); err != nil {
		return err
	}
	for _, s := range samples {
		if err := binary.Write(w, binary.BigEndian, uint64(s.SequenceNumber)); err != nil {
			return err
		}
		if err := writeChunk(w, s.InlineQoS); err != nil {
			return err
		}
		if err := writeChunk(w, s.Payload); err != nil {
			return err
		}
		keyOnly := byte(0)
		if s.KeyOnly {
			keyOnly = 1
		}
		if err := w.WriteByte(keyOnly); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, s.Timestamp.UnixNano()); err != nil {
			return err
		}
	}
	return nil
}

func decodeSnapshot(raw []byte) ([]Sample, error) {
	r := bytes.NewReader(raw)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, count)
	for i := uint32(0); i < count; i++ {
		var sn uint64
		if err := binary.Read(r, binary.BigEndian, &sn); err != nil {
			return nil, err
		}
		inlineQoS, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		payload, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		keyOnly, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		var nanos int64
		if err := binary.Read(r, binary.BigEndian, &nanos); err != nil {
			return nil, err
		}
		samples = append(samples, Sample{
			SequenceNumber: guid.SequenceNumber(sn),
			InlineQoS:      inlineQoS,
			Payload:        payload,
			KeyOnly:        keyOnly != 0,
			Timestamp:      time.Unix(0, nanos).UTC(),
		})
	}
	return samples, nil
}

func writeChunk(w *bytes.Buffer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
