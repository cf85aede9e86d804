// Package ports declares the narrow interfaces the resolver pipeline and
// event pipeline depend on for external collaborators, so those packages
// never import concrete out-of-scope infrastructure (a database driver, a
// config store, a DNSSEC library).
package ports

import (
	"context"
	"time"

	"github.com/jroosing/hydradns/internal/dnsmsg"
)

// QueryLogEntry is one row a QueryLogRepository is asked to persist.
type QueryLogEntry struct {
	Domain    string
	Type      dnsmsg.RecordType
	ClientIP  string
	Blocked   bool
	CacheHit  bool
	Timestamp time.Time
}

// QueryLogRepository persists query log entries. Best-effort: callers log
// and discard failures rather than propagate them onto the query path.
type QueryLogRepository interface {
	LogQuery(ctx context.Context, entry QueryLogEntry) error
}

// ConfigProvider yields the frozen configuration snapshot consumed by the
// resolver and upstream pool (timeouts, pools, cache sizes, eviction
// strategy, TTLs, thresholds).
type ConfigProvider interface {
	Snapshot() any
}

// DNSSECStatus classifies the outcome of DNSSEC validation.
type DNSSECStatus int

const (
	DNSSECIndeterminate DNSSECStatus = iota
	DNSSECSecure
	DNSSECInsecure
	DNSSECBogus
)

// DnssecValidator validates a domain/type pair against DNSSEC chains of
// trust. Optional: the resolver pipeline's DNSSEC layer is a stub when no
// validator is configured.
type DnssecValidator interface {
	Validate(ctx context.Context, domain string, qtype dnsmsg.RecordType) (DNSSECStatus, error)
}

// PredictivePrefetcher suggests related domains to proactively refresh
// after a query, e.g. a CDN hostname that commonly precedes an asset host.
// Optional: the resolver pipeline's prefetch fan-out is skipped when no
// prefetcher is configured.
type PredictivePrefetcher interface {
	OnQuery(domain string) []string
}
