package upstream

import "context"

// Failover iterates healthy endpoints in configured order and returns the
// first that produces a response. It proceeds to the next endpoint only on
// a transport error; a DNS-level outcome (even NXDOMAIN/SERVFAIL) is a
// response, not an error, so it stops the iteration.
type Failover struct{}

// Execute implements Strategy.
func (Failover) Execute(ctx context.Context, endpoints []Endpoint, attempt Attempt, observe Observe) (Result, error) {
	if len(endpoints) == 0 {
		return Result{}, ErrNoHealthyEndpoints
	}

	var lastErr error
	for _, ep := range endpoints {
		wire, latency, err := attempt(ctx, ep)
		if observe != nil {
			observe(ep, latency, err == nil)
		}
		if err != nil {
			lastErr = err
			continue
		}
		return Result{Response: wire, Endpoint: ep}, nil
	}
	return Result{}, lastErr
}
