package transport

import (
	"context"
)

// IntraTransport is a placeholder Transport for the KindIntraProcess
// Locator: same-process matches never actually serialize onto it (that
// path is internal/dispatch's TopicMerger, spec.md §4.4), but a Locator of
// this kind must still resolve to something satisfying the Transport
// interface for code that enumerates all of a participant's transports
// uniformly.
type IntraTransport struct {
	local Locator
}

// NewIntraTransport returns a Transport whose Send/Receive are no-ops: the
// intra-process fast path never reaches this type.
func NewIntraTransport() *IntraTransport {
	return &IntraTransport{local: Locator{Kind: KindIntraProcess}}
}

func (t *IntraTransport) LocalLocator() Locator { return t.local }

func (t *IntraTransport) Send(Locator, []byte) error { return nil }

func (t *IntraTransport) Receive(ctx context.Context) (Received, error) {
	<-ctx.Done()
	return Received{}, ctx.Err()
}

func (t *IntraTransport) Close() error { return nil }
