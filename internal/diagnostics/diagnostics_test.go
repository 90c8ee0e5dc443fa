package diagnostics

import "testing"

func TestLogEnvelopeDoesNotPanicOnEmptyPayload(t *testing.T) {
	// LogEnvelope is a thin diagnostic formatter; this guards against a
	// nil/empty Payload causing a panic in the format call.
	LogEnvelope(Envelope{SrcIP: "127.0.0.1", DstIP: "127.0.0.1", SrcPort: 7411, DstPort: 7411})
}

func TestNewSnifferRejectsUnknownInterface(t *testing.T) {
	if _, err := NewSniffer("hdds-test-nonexistent-iface-0"); err == nil {
		t.Fatal("expected an error opening a nonexistent capture interface")
	}
}
