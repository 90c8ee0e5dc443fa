// Copyright 2024 The hdds Authors.

package hdds

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hdds-io/hdds/internal/qos"
)

// SampleIdentity correlates a reply with the request it answers (spec.md
// §6.5, supplemented by original_source/'s SampleIdentity-correlated
// request/reply shape). It is a plain value so application code never
// needs to import pkg/guid to use the RPC helper.
type SampleIdentity struct {
	WriterGuid [16]byte
	Sequence   uint64
}

const sampleIdentityLen = 16 + 8

func encodeSampleIdentity(id SampleIdentity) []byte {
	buf := make([]byte, sampleIdentityLen)
	copy(buf[:16], id.WriterGuid[:])
	binary.BigEndian.PutUint64(buf[16:24], id.Sequence)
	return buf
}

func decodeSampleIdentity(buf []byte) (SampleIdentity, []byte, error) {
	if len(buf) < sampleIdentityLen {
		return SampleIdentity{}, nil, fmt.Errorf("hdds: rpc envelope truncated")
	}
	var id SampleIdentity
	copy(id.WriterGuid[:], buf[:16])
	id.Sequence = binary.BigEndian.Uint64(buf[16:24])
	return id, buf[sampleIdentityLen:], nil
}

// RequestEnvelope wraps a request payload with the identity its reply must
// carry back (spec.md §6.5).
type RequestEnvelope[Req any] struct {
	Identity SampleIdentity
	Payload  Req
}

// ReplyEnvelope wraps a reply payload with the identity of the request it
// answers.
type ReplyEnvelope[Rep any] struct {
	RelatedIdentity SampleIdentity
	Payload         Rep
}

// requestCodec/replyCodec prefix the caller's own Codec with the fixed
// 24-byte identity, so the RPC helper needs no reflection or IDL support to
// compose with an arbitrary application Codec.
type requestCodec[Req any] struct{ inner Codec[Req] }

func (c requestCodec[Req]) Marshal(v RequestEnvelope[Req]) ([]byte, error) {
	body, err := c.inner.Marshal(v.Payload)
	if err != nil {
		return nil, err
	}
	return append(encodeSampleIdentity(v.Identity), body...), nil
}

func (c requestCodec[Req]) Unmarshal(data []byte) (RequestEnvelope[Req], error) {
	id, rest, err := decodeSampleIdentity(data)
	if err != nil {
		return RequestEnvelope[Req]{}, err
	}
	payload, err := c.inner.Unmarshal(rest)
	if err != nil {
		return RequestEnvelope[Req]{}, err
	}
	return RequestEnvelope[Req]{Identity: id, Payload: payload}, nil
}

type replyCodec[Rep any] struct{ inner Codec[Rep] }

func (c replyCodec[Rep]) Marshal(v ReplyEnvelope[Rep]) ([]byte, error) {
	body, err := c.inner.Marshal(v.Payload)
	if err != nil {
		return nil, err
	}
	return append(encodeSampleIdentity(v.RelatedIdentity), body...), nil
}

func (c replyCodec[Rep]) Unmarshal(data []byte) (ReplyEnvelope[Rep], error) {
	id, rest, err := decodeSampleIdentity(data)
	if err != nil {
		return ReplyEnvelope[Rep]{}, err
	}
	payload, err := c.inner.Unmarshal(rest)
	if err != nil {
		return ReplyEnvelope[Rep]{}, err
	}
	return ReplyEnvelope[Rep]{RelatedIdentity: id, Payload: payload}, nil
}

// Requester is the client side of the rq/<service> + rr/<service>
// convention (spec.md §6.5): it issues correlated requests and lets the
// caller poll for replies. It does not implement timeout or retry
// bookkeeping itself, per spec.md §6.5's explicit restriction.
type Requester[Req, Rep any] struct {
	mu   sync.Mutex
	next uint64

	writer *DataWriter[RequestEnvelope[Req]]
	reader *DataReader[ReplyEnvelope[Rep]]
}

// NewRequester creates the two topics a request/reply exchange with
// service needs, reusing the participant's default QoS profile.
func NewRequester[Req, Rep any](p *Participant, service string, reqCodec Codec[Req], repCodec Codec[Rep]) (*Requester[Req, Rep], error) {
	return NewRequesterWithQoS[Req, Rep](p, service, p.DefaultQoS, reqCodec, repCodec)
}

// NewRequesterWithQoS is NewRequester with an explicit QoS profile for both
// the request writer and the reply reader.
func NewRequesterWithQoS[Req, Rep any](p *Participant, service string, policy qos.Policy, reqCodec Codec[Req], repCodec Codec[Rep]) (*Requester[Req, Rep], error) {
	w, err := CreateWriter[RequestEnvelope[Req]](p, NewTopic("rq/"+service, service+".Request"), policy, requestCodec[Req]{inner: reqCodec})
	if err != nil {
		return nil, err
	}
	r, err := CreateReader[ReplyEnvelope[Rep]](p, NewTopic("rr/"+service, service+".Reply"), policy, replyCodec[Rep]{inner: repCodec})
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Requester[Req, Rep]{writer: w, reader: r}, nil
}

// Request sends payload and returns the SampleIdentity its reply will
// carry back in ReplyEnvelope.RelatedIdentity; the caller matches replies
// to requests itself.
func (req *Requester[Req, Rep]) Request(payload Req) (SampleIdentity, error) {
	req.mu.Lock()
	req.next++
	seq := req.next
	req.mu.Unlock()

	id := SampleIdentity{WriterGuid: req.writer.guid.Bytes(), Sequence: seq}
	if err := req.writer.Write(RequestEnvelope[Req]{Identity: id, Payload: payload}); err != nil {
		return SampleIdentity{}, err
	}
	return id, nil
}

// TakeReply removes and returns the oldest buffered reply, if any.
func (req *Requester[Req, Rep]) TakeReply() (ReplyEnvelope[Rep], bool) {
	return req.reader.Take()
}

// GetStatusCondition returns the condition that fires when a reply arrives.
func (req *Requester[Req, Rep]) GetStatusCondition() *StatusCondition {
	return req.reader.GetStatusCondition()
}

// Close releases both the request writer and reply reader.
func (req *Requester[Req, Rep]) Close() error {
	err := req.writer.Close()
	if rerr := req.reader.Close(); err == nil {
		err = rerr
	}
	return err
}

// Replier is the service side of the rq/<service> + rr/<service>
// convention: it receives requests and sends correlated replies.
type Replier[Req, Rep any] struct {
	writer *DataWriter[ReplyEnvelope[Rep]]
	reader *DataReader[RequestEnvelope[Req]]
}

// NewReplier mirrors NewRequester from the service's side.
func NewReplier[Req, Rep any](p *Participant, service string, reqCodec Codec[Req], repCodec Codec[Rep]) (*Replier[Req, Rep], error) {
	return NewReplierWithQoS[Req, Rep](p, service, p.DefaultQoS, reqCodec, repCodec)
}

// NewReplierWithQoS is NewReplier with an explicit QoS profile.
func NewReplierWithQoS[Req, Rep any](p *Participant, service string, policy qos.Policy, reqCodec Codec[Req], repCodec Codec[Rep]) (*Replier[Req, Rep], error) {
	r, err := CreateReader[RequestEnvelope[Req]](p, NewTopic("rq/"+service, service+".Request"), policy, requestCodec[Req]{inner: reqCodec})
	if err != nil {
		return nil, err
	}
	w, err := CreateWriter[ReplyEnvelope[Rep]](p, NewTopic("rr/"+service, service+".Reply"), policy, replyCodec[Rep]{inner: repCodec})
	if err != nil {
		r.Close()
		return nil, err
	}
	return &Replier[Req, Rep]{writer: w, reader: r}, nil
}

// TakeRequest removes and returns the oldest buffered request, if any.
func (rp *Replier[Req, Rep]) TakeRequest() (RequestEnvelope[Req], bool) {
	return rp.reader.Take()
}

// Reply sends payload correlated to related (the Identity carried by the
// RequestEnvelope this answers).
func (rp *Replier[Req, Rep]) Reply(related SampleIdentity, payload Rep) error {
	return rp.writer.Write(ReplyEnvelope[Rep]{RelatedIdentity: related, Payload: payload})
}

// GetStatusCondition returns the condition that fires when a request
// arrives.
func (rp *Replier[Req, Rep]) GetStatusCondition() *StatusCondition {
	return rp.reader.GetStatusCondition()
}

// Close releases both the request reader and reply writer.
func (rp *Replier[Req, Rep]) Close() error {
	err := rp.reader.Close()
	if werr := rp.writer.Close(); err == nil {
		err = werr
	}
	return err
}
