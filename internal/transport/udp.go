package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jroosing/hydradns/internal/dnsmsg"
)

// udpPoolSize bounds how many idle sockets are kept open per destination
// address, mirroring the teacher's bounded buffer-pool idiom
// (internal/pool.Pool) applied to sockets instead of byte slices.
const udpPoolSize = 4

// udpDefaultBudget is the shared send+receive timeout used when the caller's
// context carries no deadline.
const udpDefaultBudget = 2 * time.Second

// UDP is a Dialer that sends DNS queries over UDP, pooling up to
// udpPoolSize connected sockets per destination address. A connected UDP
// socket only ever delivers datagrams from the address it was connected to,
// which is how responses whose source IP differs from the target endpoint
// are rejected at the kernel level rather than after the fact.
type UDP struct {
	mu    sync.Mutex
	pools map[string]*udpSocketPool
}

// NewUDP returns a ready-to-use UDP dialer.
func NewUDP() *UDP {
	return &UDP{pools: make(map[string]*udpSocketPool)}
}

type udpSocketPool struct {
	mu    sync.Mutex
	conns []*net.UDPConn
}

func (p *udpSocketPool) get(addr string) (*net.UDPConn, error) {
	p.mu.Lock()
	if n := len(p.conns); n > 0 {
		c := p.conns[n-1]
		p.conns = p.conns[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, raddr)
}

func (p *udpSocketPool) put(c *net.UDPConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) >= udpPoolSize {
		_ = c.Close()
		return
	}
	p.conns = append(p.conns, c)
}

func (d *UDP) poolFor(addr string) *udpSocketPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[addr]
	if !ok {
		p = &udpSocketPool{}
		d.pools[addr] = p
	}
	return p
}

// Send implements Dialer.
func (d *UDP) Send(ctx context.Context, wire []byte, ep Endpoint) ([]byte, error) {
	pool := d.poolFor(ep.Addr)
	conn, err := pool.get(ep.Addr)
	if err != nil {
		return nil, classify(ep.Addr, err)
	}

	deadline := time.Now().Add(udpDefaultBudget)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(wire); err != nil {
		_ = conn.Close()
		return nil, classify(ep.Addr, err)
	}

	buf := make([]byte, dnsmsg.EDNSMaxUDPPayloadSize)
	n, err := conn.Read(buf)
	if err != nil {
		_ = conn.Close()
		return nil, classify(ep.Addr, err)
	}

	pool.put(conn)
	return buf[:n], nil
}
