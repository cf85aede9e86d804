package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"
)

// tcpDefaultBudget is the shared dial+send+receive timeout used when the
// caller's context carries no deadline.
const tcpDefaultBudget = 5 * time.Second

// TCP is a Dialer that sends DNS queries over TCP using RFC 1035 section
// 4.2.2 framing: a 2-byte big-endian length prefix followed by the message.
// One query per connection; no pipelining, matching the teacher's
// internal/server/tcp_server.go wire shape on the listening side.
type TCP struct {
	// DialFunc, when set, opens the connection in place of a plain
	// net.Dialer. DoT does not use it; it calls the framing helpers directly.
	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTCP returns a ready-to-use TCP dialer.
func NewTCP() *TCP {
	return &TCP{}
}

func (d *TCP) dial(ctx context.Context, addr string) (net.Conn, error) {
	if d.DialFunc != nil {
		return d.DialFunc(ctx, "tcp", addr)
	}
	var nd net.Dialer
	return nd.DialContext(ctx, "tcp", addr)
}

// Send implements Dialer.
func (d *TCP) Send(ctx context.Context, wire []byte, ep Endpoint) ([]byte, error) {
	deadline := time.Now().Add(tcpDefaultBudget)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := d.dial(dialCtx, ep.Addr)
	if err != nil {
		return nil, classify(ep.Addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	if err := writeTCPMessage(conn, wire); err != nil {
		return nil, classify(ep.Addr, err)
	}
	resp, err := readTCPMessage(conn)
	if err != nil {
		return nil, classify(ep.Addr, err)
	}
	return resp, nil
}

func writeTCPMessage(w io.Writer, msg []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

func readTCPMessage(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
