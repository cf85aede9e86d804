package resolver

import (
	"context"
	"log/slog"

	"github.com/jroosing/hydradns/internal/answercache"
	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/ports"
)

// prefetchLayer wraps next: after a successful resolution it asks the
// predictor for related domains and resolves each in a detached goroutine
// using the pool directly, inserting the result into the shared cache. The
// prefetch path never blocks the caller (spec §4.L).
type prefetchLayer struct {
	predictor ports.PredictivePrefetcher
	core      Layer // the core upstream layer, queried directly (bypasses filters/cache-read)
	cache     *answercache.Cache
	log       *slog.Logger
	next      Layer
}

// NewPrefetchLayer wraps next with optional predictive prefetching. A nil
// predictor disables the fan-out entirely.
func NewPrefetchLayer(predictor ports.PredictivePrefetcher, core Layer, cache *answercache.Cache, log *slog.Logger, next Layer) Layer {
	if log == nil {
		log = slog.Default()
	}
	return &prefetchLayer{predictor: predictor, core: core, cache: cache, log: log, next: next}
}

func (l *prefetchLayer) Resolve(ctx context.Context, q Query) (Resolution, error) {
	res, err := l.next.Resolve(ctx, q)
	if err != nil || l.predictor == nil {
		return res, err
	}

	for _, domain := range l.predictor.OnQuery(q.Domain) {
		go l.prefetchOne(domain, q.Type)
	}
	return res, nil
}

func (l *prefetchLayer) prefetchOne(domain string, qtype dnsmsg.RecordType) {
	ctx := context.Background()
	req := dnsmsg.Packet{Questions: []dnsmsg.Question{{Name: domain, Type: uint16(qtype), Class: uint16(dnsmsg.ClassIN)}}}

	res, err := l.core.Resolve(ctx, Query{Domain: domain, Type: qtype, Request: req, Internal: true})
	if err != nil {
		l.log.Debug("prefetch failed", "domain", domain, "type", qtype, "error", err)
		return
	}

	parsed, err := dnsmsg.ParseResponse(res.Wire)
	if err != nil || (!parsed.IsNXDomain() && !parsed.IsNoData() && len(parsed.Addresses) == 0) {
		return
	}
	ttl := int64(parsed.MinTTL)
	if ttl <= 0 {
		ttl = 1
	}
	l.cache.Insert(domain, qtype, res.Wire, parsed.Addresses, parsed.IsNXDomain() || parsed.IsNoData(), ttl, ports.DNSSECIndeterminate)
}
