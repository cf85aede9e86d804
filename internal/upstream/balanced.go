package upstream

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// ewmaAlpha weights how much a fresh latency sample moves the running
// average; smaller is smoother, matching typical EWMA latency trackers.
const ewmaAlpha = 0.3

// weightEpsilon keeps 1/(ewma+epsilon) finite when an endpoint has no
// samples yet (ewma == 0), and gives every untried endpoint equal weight.
const weightEpsilon = time.Millisecond

// Balanced maintains a weighted selection across healthy endpoints, biased
// toward lower observed latency: weight = 1/(latency_ewma + epsilon). The
// pick is a random draw proportional to weight, so endpoints with equal
// weight (including every endpoint's initial zero-sample state) are equally
// likely; there is no index-based tie-break.
type Balanced struct {
	mu    sync.Mutex
	ewma  map[string]time.Duration
	randF func() float64 // overridable in tests for determinism
}

// NewBalanced returns a Balanced strategy with no latency history.
func NewBalanced() *Balanced {
	return &Balanced{ewma: make(map[string]time.Duration)}
}

func (b *Balanced) latency(ep Endpoint) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ewma[ep.String()]
}

func (b *Balanced) record(ep Endpoint, sample time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := ep.String()
	prev, ok := b.ewma[key]
	if !ok {
		b.ewma[key] = sample
		return
	}
	b.ewma[key] = time.Duration(ewmaAlpha*float64(sample) + (1-ewmaAlpha)*float64(prev))
}

func (b *Balanced) rand() float64 {
	if b.randF != nil {
		return b.randF()
	}
	return rand.Float64()
}

// weightedPick selects one endpoint from the slice, weighted by
// 1/(latency_ewma+epsilon), using one random draw; equal weights get equal
// chances rather than favoring the lowest index.
func (b *Balanced) weightedPick(endpoints []Endpoint) int {
	weights := make([]float64, len(endpoints))
	var total float64
	for i, ep := range endpoints {
		w := 1 / (b.latency(ep).Seconds() + weightEpsilon.Seconds())
		weights[i] = w
		total += w
	}
	r := b.rand() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if r <= cum {
			return i
		}
	}
	return len(endpoints) - 1
}

// Execute implements Strategy.
func (b *Balanced) Execute(ctx context.Context, endpoints []Endpoint, attempt Attempt, observe Observe) (Result, error) {
	if len(endpoints) == 0 {
		return Result{}, ErrNoHealthyEndpoints
	}

	remaining := append([]Endpoint(nil), endpoints...)
	var lastErr error
	for len(remaining) > 0 {
		idx := b.weightedPick(remaining)
		ep := remaining[idx]

		wire, latency, err := attempt(ctx, ep)
		if observe != nil {
			observe(ep, latency, err == nil)
		}
		if err != nil {
			lastErr = err
			remaining = append(remaining[:idx], remaining[idx+1:]...)
			continue
		}
		b.record(ep, latency)
		return Result{Response: wire, Endpoint: ep}, nil
	}
	return Result{}, lastErr
}
