package transport

import "context"

// Dialer sends a wire-format DNS query to ep and returns the wire-format
// response. Implementations classify failures as a *Error so pool
// strategies can decide whether to fall through without inspecting
// driver-specific error types.
type Dialer interface {
	Send(ctx context.Context, wire []byte, ep Endpoint) ([]byte, error)
}
