package upstream

import (
	"context"
)

// Parallel races all healthy endpoints concurrently and returns the first
// successful response, cancelling the others. If every endpoint fails, the
// last error observed is reported.
type Parallel struct{}

type parallelOutcome struct {
	Result
	err error
}

// Execute implements Strategy.
func (Parallel) Execute(ctx context.Context, endpoints []Endpoint, attempt Attempt, observe Observe) (Result, error) {
	if len(endpoints) == 0 {
		return Result{}, ErrNoHealthyEndpoints
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan parallelOutcome, len(endpoints))
	for _, ep := range endpoints {
		ep := ep
		go func() {
			wire, latency, err := attempt(raceCtx, ep)
			if observe != nil {
				observe(ep, latency, err == nil)
			}
			if err != nil {
				results <- parallelOutcome{err: err}
				return
			}
			results <- parallelOutcome{Result: Result{Response: wire, Endpoint: ep}}
		}()
	}

	var lastErr error
	for range endpoints {
		out := <-results
		if out.err == nil {
			cancel()
			return out.Result, nil
		}
		lastErr = out.err
	}
	return Result{}, lastErr
}
