package upstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/events"
	"github.com/jroosing/hydradns/internal/transport"
)

// minTCPFallbackBudget is the floor applied to the remaining deadline when
// retrying a truncated UDP answer over TCP (spec §4.C).
const minTCPFallbackBudget = 500 * time.Millisecond

// PoolGroup is one named, prioritized set of endpoints sharing a Strategy.
// Pools are tried in ascending Priority.
type PoolGroup struct {
	Name      string
	Priority  int
	Strategy  Strategy
	Endpoints []Endpoint
}

// Dialers dispatches a wire send to the concrete transport.Dialer for an
// endpoint's scheme.
type Dialers struct {
	UDP  transport.Dialer
	TCP  transport.Dialer
	TLS  transport.Dialer
	HTTP transport.Dialer
}

func (d Dialers) forScheme(s transport.Scheme) transport.Dialer {
	switch s {
	case transport.SchemeUDP:
		return d.UDP
	case transport.SchemeTCP:
		return d.TCP
	case transport.SchemeTLS:
		return d.TLS
	default:
		return d.HTTP
	}
}

// Pool is an ordered set of PoolGroups tried by ascending priority. On a
// transport-class error the pool falls through to the next group; a
// DNS-class outcome (NXDOMAIN, SERVFAIL, or any other wire response)
// returns immediately without trying further groups.
type Pool struct {
	Groups  []PoolGroup
	Dialers Dialers
	Health  *HealthChecker // optional
	Emitter events.Emitter // optional; defaults to a no-op if nil

	// PoolName/RecordType are attached to emitted QueryEvents per query via
	// Query's arguments, not stored here.
}

// ErrAllServersUnreachable is returned when every pool group's endpoints
// fail with transport errors.
var ErrAllServersUnreachable = errors.New("upstream: all servers unreachable")

// sortedGroups returns Groups ordered by ascending Priority, computed once
// per call since group membership/priority rarely changes at runtime.
func (p *Pool) sortedGroups() []PoolGroup {
	groups := append([]PoolGroup(nil), p.Groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Priority < groups[j].Priority })
	return groups
}

// Query sends wire (a fully built DNS query) through the pool's groups in
// priority order and returns the wire response. domain/qtype are used only
// to label emitted QueryEvents.
func (p *Pool) Query(ctx context.Context, domain string, qtype dnsmsg.RecordType, wire []byte) ([]byte, error) {
	var lastErr error
	for _, g := range p.sortedGroups() {
		healthy := p.healthyEndpoints(g.Endpoints)
		if len(healthy) == 0 {
			continue
		}

		result, err := g.Strategy.Execute(ctx, healthy, p.attemptFor(wire), p.observeFor(g.Name, domain, qtype))
		if err != nil {
			lastErr = err
			continue
		}

		resp := result.Response
		if dnsmsg.IsTruncated(resp) {
			if retried, ok := p.retryOverTCP(ctx, wire, result.Endpoint); ok {
				resp = retried
			}
		}
		return resp, nil
	}
	if lastErr == nil {
		return nil, ErrAllServersUnreachable
	}
	return nil, fmt.Errorf("%w: %v", ErrAllServersUnreachable, lastErr)
}

func (p *Pool) healthyEndpoints(endpoints []Endpoint) []Endpoint {
	if p.Health == nil {
		return endpoints
	}
	out := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if p.Health.IsHealthy(ep) {
			out = append(out, ep)
		}
	}
	return out
}

func (p *Pool) attemptFor(wire []byte) Attempt {
	return func(ctx context.Context, ep Endpoint) ([]byte, time.Duration, error) {
		dialer := p.Dialers.forScheme(ep.Scheme)
		start := time.Now()
		resp, err := dialer.Send(ctx, wire, ep)
		latency := time.Since(start)
		if p.Health != nil {
			p.Health.RecordResult(ep, err == nil)
		}
		return resp, latency, err
	}
}

func (p *Pool) observeFor(poolName, domain string, qtype dnsmsg.RecordType) Observe {
	return func(ep Endpoint, latency time.Duration, success bool) {
		if p.Emitter == nil {
			return
		}
		p.Emitter.Emit(events.QueryEvent{
			Domain:          domain,
			Type:            qtype,
			EndpointDisplay: ep.String(),
			ResponseTimeUs:  uint64(latency.Microseconds()),
			Success:         success,
			PoolName:        poolName,
		})
	}
}

// retryOverTCP re-sends the in-flight query over TCP to ep with at least
// minTCPFallbackBudget remaining, per spec §4.C's UDP-truncation-fallback.
func (p *Pool) retryOverTCP(ctx context.Context, wire []byte, ep Endpoint) ([]byte, bool) {
	if p.Dialers.TCP == nil {
		return nil, false
	}
	budget := minTCPFallbackBudget
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > budget {
			budget = remaining
		}
	}
	tcpCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	tcpEp := ep
	tcpEp.Scheme = transport.SchemeTCP
	resp, err := p.Dialers.TCP.Send(tcpCtx, wire, tcpEp)
	if err != nil {
		return nil, false
	}
	return resp, true
}
