package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// dotDefaultBudget is the shared dial+handshake+send+receive timeout used
// when the caller's context carries no deadline.
const dotDefaultBudget = 5 * time.Second

// DoT is a Dialer that sends DNS queries over TLS-wrapped TCP (RFC 7858),
// reusing TCP's length-prefixed framing once the handshake completes. The
// certificate is verified against the endpoint's configured SNI name.
type DoT struct {
	// TLSConfig is cloned per connection and given ServerName = ep.SNI. A
	// nil TLSConfig uses the system root CA pool.
	TLSConfig *tls.Config
}

// NewDoT returns a ready-to-use DoT dialer.
func NewDoT() *DoT {
	return &DoT{}
}

// Send implements Dialer.
func (d *DoT) Send(ctx context.Context, wire []byte, ep Endpoint) ([]byte, error) {
	deadline := time.Now().Add(dotDefaultBudget)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var nd net.Dialer
	rawConn, err := nd.DialContext(dialCtx, "tcp", ep.Addr)
	if err != nil {
		return nil, classify(ep.Addr, err)
	}

	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	cfg.ServerName = ep.SNI

	conn := tls.Client(rawConn, cfg)
	_ = conn.SetDeadline(deadline)
	if err := conn.HandshakeContext(dialCtx); err != nil {
		_ = conn.Close()
		return nil, classify(ep.Addr, err)
	}
	defer conn.Close()

	if err := writeTCPMessage(conn, wire); err != nil {
		return nil, classify(ep.Addr, err)
	}
	resp, err := readTCPMessage(conn)
	if err != nil {
		return nil, classify(ep.Addr, err)
	}
	return resp, nil
}
