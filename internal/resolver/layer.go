// Package resolver composes the query resolution pipeline as a stack of
// decorators, each wrapping a "next" Layer — generalized into a named Layer
// interface so each concern (filtering, caching, DNSSEC, upstream) can be
// built, tested, and reordered independently.
package resolver

import (
	"context"
	"errors"

	"github.com/jroosing/hydradns/internal/dnsmsg"
)

// ErrProtocol wraps malformed-query failures surfaced by the pipeline,
// distinguishing them from upstream transport failures.
var ErrProtocol = errors.New("resolver: malformed query")

// Query is one client question the pipeline resolves.
type Query struct {
	Domain   string
	Type     dnsmsg.RecordType
	Class    dnsmsg.RecordClass
	Request  dnsmsg.Packet
	Internal bool // tagged DS/DNSKEY/RRSIG lookups issued by the DNSSEC layer itself
}

// Resolution is what a Layer returns: the wire response plus provenance
// the caller can use for logging (cache hit, filtered, upstream, etc).
type Resolution struct {
	Wire      []byte
	Source    string
	CacheHit  bool
	Stale     bool
	DNSSEC    int
	FromCache bool
}

// Layer resolves one query, optionally delegating to the next layer in the
// stack. The outermost layers never need "next" themselves — it is baked
// in at construction by Build.
type Layer interface {
	Resolve(ctx context.Context, q Query) (Resolution, error)
}

// LayerFunc adapts a plain function to Layer.
type LayerFunc func(ctx context.Context, q Query) (Resolution, error)

func (f LayerFunc) Resolve(ctx context.Context, q Query) (Resolution, error) {
	return f(ctx, q)
}
