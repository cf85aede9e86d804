package resolver

import (
	"context"
	"log/slog"

	"github.com/jroosing/hydradns/internal/answercache"
	"github.com/jroosing/hydradns/internal/ports"
	"github.com/jroosing/hydradns/internal/upstream"
)

// Config gathers every layer's tunables for Build.
type Config struct {
	Filter FilterConfig
	Cache  CacheLayerConfig
}

// Pipeline is the fully-assembled decorator stack: private-PTR filter →
// FQDN filter → answer cache → DNSSEC validator → prefetch → core upstream
// resolver, per spec §4.L.
type Pipeline struct {
	head Layer
}

// Resolve runs a query through the full layer stack.
func (p *Pipeline) Resolve(ctx context.Context, q Query) (Resolution, error) {
	return p.head.Resolve(ctx, q)
}

// Build assembles the pipeline from its dependencies. l1 is the calling
// worker's thread-local answer-cache tier (nil to skip it); validator and
// prefetcher are both optional (nil disables the corresponding layer).
// dnssecOK reports whether a given query requested DNSSEC validation and
// may be nil alongside a nil validator.
func Build(
	cfg Config,
	cache *answercache.Cache,
	negative *answercache.NegativeTTLTracker,
	l1 *answercache.L1Cache,
	pool *upstream.Pool,
	validator ports.DnssecValidator,
	dnssecOK func(q Query) bool,
	prefetcher ports.PredictivePrefetcher,
	log *slog.Logger,
) *Pipeline {
	core := NewCoreLayer(pool)
	stack := Layer(core)
	stack = NewPrefetchLayer(prefetcher, core, cache, log, stack)
	stack = NewDNSSECLayer(validator, dnssecOK, log, stack)
	stack = NewCacheLayer(cfg.Cache, cache, negative, l1, stack)
	stack = NewFQDNLayer(cfg.Filter, stack)
	stack = NewPrivatePTRLayer(stack)
	return &Pipeline{head: stack}
}
