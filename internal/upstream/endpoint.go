package upstream

import "github.com/jroosing/hydradns/internal/transport"

// Endpoint is the tagged union over UDP/TCP/TLS/HTTPS upstream transports.
// Defined in transport since transport.Dialer.Send already needs it; the
// alias keeps callers writing upstream.Endpoint the way spec §3 names it.
type Endpoint = transport.Endpoint

// ParseEndpoint parses one of the four upstream endpoint string forms
// (udp://, tcp://, tls://, https://) described in spec §6.
func ParseEndpoint(s string) (Endpoint, error) {
	return transport.ParseEndpoint(s)
}
