package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/hdds-io/hdds/pkg/hlog"
)

// UDPTransport is the primary RTPS transport: unicast and (for discovery)
// multicast UDP. Multicast group membership and per-socket TTL/loopback are
// managed through golang.org/x/net/ipv4 or ipv6, which plain net.ListenUDP
// cannot express (spec.md §4.3).
//
// Grounded on the teacher's meshage broadcastListener/checkDegree pattern
// (net.ListenUDP for the receive socket, a single long-lived read loop),
// generalized from meshage's fixed broadcast port to RTPS's multicast
// group-join model.
type UDPTransport struct {
	conn    *net.UDPConn
	pc4     *ipv4.PacketConn
	pc6     *ipv6.PacketConn
	local   Locator
	pool    *Pool
	recvCh  chan Received
	closeCh chan struct{}
}

// UDPOptions configures a new UDPTransport.
type UDPOptions struct {
	// MulticastGroup, if set, is joined on Iface (or all interfaces when
	// Iface is nil) for receiving discovery traffic.
	MulticastGroup net.IP
	Iface          *net.Interface
	TTL            int
	Loopback       bool
	BufferSize     int
}

// NewUDPTransport binds a UDP socket at bindAddr:port and, if opts requests
// it, joins a multicast group for discovery (spec.md §4.3).
func NewUDPTransport(bindAddr net.IP, port uint16, opts UDPOptions) (*UDPTransport, error) {
	udpAddr := &net.UDPAddr{IP: bindAddr, Port: int(port)}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %s: %w", udpAddr, err)
	}

	t := &UDPTransport{
		conn:    conn,
		pool:    NewPool(opts.BufferSize),
		recvCh:  make(chan Received, 64),
		closeCh: make(chan struct{}),
	}

	isV6 := bindAddr != nil && bindAddr.To4() == nil
	if isV6 {
		t.local = NewLocator(KindUDPv6, bindAddr, port)
	} else {
		t.local = NewLocator(KindUDPv4, bindAddr, port)
	}

	if opts.MulticastGroup != nil {
		if err := t.joinMulticast(opts, isV6); err != nil {
			conn.Close()
			return nil, err
		}
	}

	go t.readLoop()
	return t, nil
}

// readLoop is the transport's single long-lived receive goroutine,
// grounded on the teacher's meshage broadcastListener: one goroutine per
// socket reading in a loop and handing results off rather than a
// goroutine spun up per Receive call.
func (t *UDPTransport) readLoop() {
	for {
		buf := t.pool.Get()
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closeCh:
			default:
				hlog.Debug("transport: udp read loop on %s exiting: %v", t.local, err)
			}
			return
		}
		src := NewLocator(t.local.Kind, addr.IP, uint16(addr.Port))
		select {
		case t.recvCh <- Received{Data: buf[:n], Source: src, Timestamp: time.Now()}:
		case <-t.closeCh:
			return
		}
	}
}

func (t *UDPTransport) joinMulticast(opts UDPOptions, isV6 bool) error {
	group := &net.UDPAddr{IP: opts.MulticastGroup}
	if isV6 {
		pc := ipv6.NewPacketConn(t.conn)
		if err := pc.JoinGroup(opts.Iface, group); err != nil {
			return fmt.Errorf("transport: join multicast group %s: %w", opts.MulticastGroup, err)
		}
		if opts.TTL > 0 {
			pc.SetHopLimit(opts.TTL)
		}
		pc.SetMulticastLoopback(opts.Loopback)
		t.pc6 = pc
		return nil
	}
	pc := ipv4.NewPacketConn(t.conn)
	if err := pc.JoinGroup(opts.Iface, group); err != nil {
		return fmt.Errorf("transport: join multicast group %s: %w", opts.MulticastGroup, err)
	}
	if opts.TTL > 0 {
		pc.SetMulticastTTL(opts.TTL)
	}
	pc.SetMulticastLoopback(opts.Loopback)
	t.pc4 = pc
	return nil
}

func (t *UDPTransport) LocalLocator() Locator { return t.local }

// Send is best-effort: a write error is returned, but the caller must not
// treat an accepted write as delivery confirmation (spec.md §4.3).
func (t *UDPTransport) Send(dst Locator, buf []byte) error {
	select {
	case <-t.closeCh:
		return ErrClosed
	default:
	}
	_, err := t.conn.WriteToUDP(buf, dst.UDPAddr())
	if err != nil {
		hlog.Debug("transport: udp send to %s failed: %v", dst, err)
	}
	return err
}

func (t *UDPTransport) Receive(ctx context.Context) (Received, error) {
	select {
	case <-ctx.Done():
		return Received{}, ctx.Err()
	case <-t.closeCh:
		return Received{}, ErrClosed
	case r := <-t.recvCh:
		return r, nil
	}
}

func (t *UDPTransport) Close() error {
	select {
	case <-t.closeCh:
		return nil
	default:
		close(t.closeCh)
	}
	return t.conn.Close()
}

// ReleaseBuffer returns a Received.Data buffer to the transport's pool. No
// caller in this module uses it, so buffers handed out by Receive are left
// to the garbage collector rather than reused.
func (t *UDPTransport) ReleaseBuffer(buf []byte) {
	t.pool.Put(buf)
}
