package upstream

import (
	"context"
	"fmt"
	"time"
)

// Attempt sends wire to one endpoint and reports the wire response and how
// long it took. Transport-classified errors (see transport.Error) are the
// only errors a Strategy reacts to; DNS-level outcomes (NXDOMAIN, SERVFAIL)
// arrive as ordinary bytes and count as success.
type Attempt func(ctx context.Context, ep Endpoint) ([]byte, time.Duration, error)

// Observe is called once per individual endpoint attempt, successful or
// not, so the pool can emit a QueryEvent (spec §4.C "Query events").
type Observe func(ep Endpoint, latency time.Duration, success bool)

// Result is a Strategy's outcome: the response bytes and which endpoint
// produced them, so the pool can retry a truncated UDP answer over TCP
// against that same endpoint.
type Result struct {
	Response []byte
	Endpoint Endpoint
}

// Strategy selects and dispatches across a pool's healthy endpoints.
type Strategy interface {
	Execute(ctx context.Context, endpoints []Endpoint, attempt Attempt, observe Observe) (Result, error)
}

// ErrNoHealthyEndpoints is returned when a strategy is given an empty
// endpoint list (every endpoint in the group is unhealthy).
var ErrNoHealthyEndpoints = fmt.Errorf("upstream: no healthy endpoints")
