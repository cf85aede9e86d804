package resolver

import (
	"context"
	"time"

	"github.com/jroosing/hydradns/internal/answercache"
	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/ports"
)

// CacheLayerConfig holds the answer-cache layer's TTL policy (spec §4.L/§4.I).
type CacheLayerConfig struct {
	MaxTTL int64 // config.cache_ttl: ceiling applied to the upstream's own min TTL
}

// cacheLayer fronts next with the shared answer cache: a hit (fresh or
// stale) returns directly; a stale-usable hit also schedules a refresh by
// way of the Updater, which polls RefreshCandidates independently — this
// layer only needs to record the payload and let the claimed latch do its
// job. A miss delegates to next and writes the result back.
type cacheLayer struct {
	cfg      CacheLayerConfig
	cache    *answercache.Cache
	negative *answercache.NegativeTTLTracker
	l1       *answercache.L1Cache // per-worker, may be nil
	next     Layer
}

// NewCacheLayer wraps next with the shared answer cache. l1 is the calling
// worker's thread-local fast path and may be nil to skip that tier.
func NewCacheLayer(cfg CacheLayerConfig, cache *answercache.Cache, negative *answercache.NegativeTTLTracker, l1 *answercache.L1Cache, next Layer) Layer {
	return &cacheLayer{cfg: cfg, cache: cache, negative: negative, l1: l1, next: next}
}

func (l *cacheLayer) Resolve(ctx context.Context, q Query) (Resolution, error) {
	if res, ok := l.cache.Get(l.l1, q.Domain, q.Type); ok {
		return Resolution{Wire: res.Payload, Source: "answer-cache", CacheHit: true, Stale: res.Stale, FromCache: true}, nil
	}

	res, err := l.next.Resolve(ctx, q)
	if err != nil {
		return Resolution{}, err
	}

	l.writeBack(q, res.Wire, ports.DNSSECStatus(res.DNSSEC))
	return res, nil
}

func (l *cacheLayer) writeBack(q Query, wire []byte, dnssec ports.DNSSECStatus) {
	parsed, err := dnsmsg.ParseResponse(wire)
	if err != nil {
		return
	}

	switch {
	case parsed.IsNXDomain() || parsed.IsNoData():
		ttlSeconds := int64(l.negative.RecordAndGetTTL(q.Domain) / time.Second)
		if parsed.HasSOAMinimum && int64(parsed.SOAMinimum) < ttlSeconds {
			ttlSeconds = int64(parsed.SOAMinimum)
		}
		l.cache.Insert(q.Domain, q.Type, wire, nil, true, ttlSeconds, dnssec)

	case parsed.IsServerError():
		// SERVFAIL/REFUSED/NOTIMP are not cached; the spec's negative
		// caching is scoped to NXDOMAIN/NODATA, protecting upstream from
		// repeated identical failures without masking a real outage.

	default:
		ttl := int64(parsed.MinTTL)
		if !parsed.HasMinTTL || ttl <= 0 {
			ttl = 1
		}
		if l.cfg.MaxTTL > 0 && ttl > l.cfg.MaxTTL {
			ttl = l.cfg.MaxTTL
		}
		l.cache.Insert(q.Domain, q.Type, wire, parsed.Addresses, false, ttl, dnssec)
	}
}
