package resolver

import (
	"context"

	"github.com/jroosing/hydradns/internal/upstream"
)

// coreLayer is the innermost layer: it calls the upstream pool and returns
// whatever comes back (including DNS-level errors), with no caching or
// filtering of its own. Pool.Query already implements the priority/
// failover/health semantics of spec §4.C/D.
type coreLayer struct {
	pool *upstream.Pool
}

// NewCoreLayer wraps an upstream pool as the pipeline's terminal layer.
func NewCoreLayer(pool *upstream.Pool) Layer {
	return &coreLayer{pool: pool}
}

func (l *coreLayer) Resolve(ctx context.Context, q Query) (Resolution, error) {
	wire, err := q.Request.Marshal()
	if err != nil {
		return Resolution{}, ErrProtocol
	}

	resp, err := l.pool.Query(ctx, q.Domain, q.Type, wire)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Wire: resp, Source: "upstream"}, nil
}
