package upstream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Health checker defaults (spec §4.D).
const (
	DefaultProbeInterval  = 30 * time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultUnhealthyAfter = 3 // consecutive failures to go Healthy -> Unhealthy
	DefaultHealthyAfter   = 2 // consecutive successes to go Unhealthy -> Healthy
)

// Prober sends a single known-answer probe query to ep and reports
// success.
type Prober func(ctx context.Context, ep Endpoint) error

// HealthChecker tracks per-endpoint health with a rolling consecutive
// failure/success counter and an atomic healthy flag per endpoint. IsHealthy
// finds the endpoint's entry under the checker's mutex, then loads the flag.
type HealthChecker struct {
	Probe          Prober
	Interval       time.Duration
	Timeout        time.Duration
	UnhealthyAfter int
	HealthyAfter   int

	mu    sync.Mutex
	state map[string]*endpointHealth
}

type endpointHealth struct {
	healthy     atomic.Bool
	consecutive int // positive run of successes, negative run of failures
}

// NewHealthChecker returns a HealthChecker with spec-default thresholds.
// Every endpoint starts healthy (optimistic default, consistent with the
// teacher's "assume healthy until proven otherwise" failover idiom).
func NewHealthChecker(probe Prober) *HealthChecker {
	return &HealthChecker{
		Probe:          probe,
		Interval:       DefaultProbeInterval,
		Timeout:        DefaultProbeTimeout,
		UnhealthyAfter: DefaultUnhealthyAfter,
		HealthyAfter:   DefaultHealthyAfter,
		state:          make(map[string]*endpointHealth),
	}
}

func (h *HealthChecker) entry(ep Endpoint) *endpointHealth {
	key := ep.String()
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.state[key]
	if !ok {
		e = &endpointHealth{}
		e.healthy.Store(true)
		h.state[key] = e
	}
	return e
}

// IsHealthy is an O(1) check: a map lookup under h.mu, then one atomic load.
// It is not lock-free.
func (h *HealthChecker) IsHealthy(ep Endpoint) bool {
	return h.entry(ep).healthy.Load()
}

// RecordResult updates ep's consecutive counter and flips the healthy flag
// when the configured threshold is crossed.
func (h *HealthChecker) RecordResult(ep Endpoint, success bool) {
	e := h.entry(ep)
	h.mu.Lock()
	if success {
		if e.consecutive < 0 {
			e.consecutive = 0
		}
		e.consecutive++
		if !e.healthy.Load() && e.consecutive >= h.HealthyAfter {
			e.healthy.Store(true)
		}
	} else {
		if e.consecutive > 0 {
			e.consecutive = 0
		}
		e.consecutive--
		if e.healthy.Load() && -e.consecutive >= h.UnhealthyAfter {
			e.healthy.Store(false)
		}
	}
	h.mu.Unlock()
}

// Run starts the periodic prober loop, probing every endpoint in endpoints on
// each tick until ctx is cancelled. An endpoint with no recorded result yet
// counts as healthy (optimistic).
func (h *HealthChecker) Run(ctx context.Context, endpoints []Endpoint) {
	if h.Interval <= 0 {
		h.Interval = DefaultProbeInterval
	}
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ep := range endpoints {
				h.probeOne(ctx, ep)
			}
		}
	}
}

func (h *HealthChecker) probeOne(ctx context.Context, ep Endpoint) {
	if h.Probe == nil {
		return
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := h.Probe(probeCtx, ep)
	h.RecordResult(ep, err == nil)
}
