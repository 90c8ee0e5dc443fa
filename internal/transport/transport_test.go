package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestPortFormula(t *testing.T) {
	if got := DiscoveryMulticastPort(0); got != 7400 {
		t.Fatalf("DiscoveryMulticastPort(0) = %d, want 7400", got)
	}
	if got := DiscoveryUnicastPort(0, 0); got != 7410 {
		t.Fatalf("DiscoveryUnicastPort(0,0) = %d, want 7410", got)
	}
	if got := UserUnicastPort(1, 2); got != 7400+250+11+4 {
		t.Fatalf("UserUnicastPort(1,2) = %d, want %d", got, 7400+250+11+4)
	}
}

func TestLocatorIPRoundTrip(t *testing.T) {
	ip := net.IPv4(192, 168, 1, 42)
	loc := NewLocator(KindUDPv4, ip, 7411)
	if !loc.IP().Equal(ip) {
		t.Fatalf("IP() = %v, want %v", loc.IP(), ip)
	}
}

func TestPoolGetPutReuses(t *testing.T) {
	p := NewPool(1024)
	buf := p.Get()
	if len(buf) != 1024 {
		t.Fatalf("Get() length = %d, want 1024", len(buf))
	}
	p.Put(buf)
	buf2 := p.Get()
	if len(buf2) != 1024 {
		t.Fatalf("reused buffer length = %d, want 1024", len(buf2))
	}
}

func TestUDPTransportSendReceiveLoopback(t *testing.T) {
	a, err := NewUDPTransport(net.IPv4(127, 0, 0, 1), 0, UDPOptions{})
	if err != nil {
		t.Fatalf("NewUDPTransport a: %v", err)
	}
	defer a.Close()
	b, err := NewUDPTransport(net.IPv4(127, 0, 0, 1), 0, UDPOptions{})
	if err != nil {
		t.Fatalf("NewUDPTransport b: %v", err)
	}
	defer b.Close()

	msg := []byte("rtps-payload")
	if err := a.Send(b.LocalLocator(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got.Data, msg) {
		t.Fatalf("Receive data = %q, want %q", got.Data, msg)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("expected a non-zero receive timestamp")
	}
}

func TestUDPTransportReceiveRespectsContextCancellation(t *testing.T) {
	a, err := NewUDPTransport(net.IPv4(127, 0, 0, 1), 0, UDPOptions{})
	if err != nil {
		t.Fatalf("NewUDPTransport: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := a.Receive(ctx); err == nil {
		t.Fatal("expected Receive to return an error on context timeout")
	}
}

func TestTCPTransportSendReceiveFramed(t *testing.T) {
	server, err := NewTCPTransport(net.IPv4(127, 0, 0, 1), 0)
	if err != nil {
		t.Fatalf("NewTCPTransport server: %v", err)
	}
	defer server.Close()

	serverAddr := server.listener.Addr().(*net.TCPAddr)
	client, err := NewTCPTransport(net.IPv4(127, 0, 0, 1), 0)
	if err != nil {
		t.Fatalf("NewTCPTransport client: %v", err)
	}
	defer client.Close()

	dst := NewLocator(KindTCP, serverAddr.IP, uint16(serverAddr.Port))
	msg := []byte("framed-rtps-message")
	if err := client.Send(dst, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got.Data, msg) {
		t.Fatalf("Receive data = %q, want %q", got.Data, msg)
	}
}

func TestIntraTransportIsNoOp(t *testing.T) {
	it := NewIntraTransport()
	if err := it.Send(Locator{}, []byte("x")); err != nil {
		t.Fatalf("Send should be a no-op, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := it.Receive(ctx); err == nil {
		t.Fatal("expected Receive to return when context is done")
	}
}
