package answercache

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/helpers"
	"github.com/jroosing/hydradns/internal/ports"
)

// Updater defaults (spec §4.J).
const (
	DefaultRefreshInterval    = 60 * time.Second
	DefaultCompactionInterval = 300 * time.Second
	refreshPause              = 5 * time.Millisecond
)

// Refresher re-queries upstream for one refresh candidate, bypassing the
// cache-read step, and returns the fresh wire response plus its TTL and
// DNSSEC status. Callers typically wire this to the core upstream-pool
// resolver layer directly, not the full pipeline.
type Refresher func(ctx context.Context, domain string, qtype dnsmsg.RecordType) (payload []byte, addresses []net.IP, negative bool, ttl time.Duration, dnssec ports.DNSSECStatus, err error)

// Updater runs the Cache's background refresh and compaction loops.
type Updater struct {
	Cache              *Cache
	Clock              *helpers.CoarseClock
	Refresh            Refresher
	RefreshInterval    time.Duration
	CompactionInterval time.Duration
	Log                *slog.Logger

	compactions uint64
}

// NewUpdater returns an Updater with spec-default intervals.
func NewUpdater(cache *Cache, clock *helpers.CoarseClock, refresh Refresher, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		Cache:              cache,
		Clock:              clock,
		Refresh:            refresh,
		RefreshInterval:    DefaultRefreshInterval,
		CompactionInterval: DefaultCompactionInterval,
		Log:                logger,
	}
}

// Run starts the refresh loop, the compaction loop, and the coarse clock's
// own tick (advanced at the compaction cadence per spec §4.J), all
// respecting ctx cancellation. Blocks until ctx is done.
func (u *Updater) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	go func() { u.refreshLoop(ctx); done <- struct{}{} }()
	go func() { u.compactionLoop(ctx); done <- struct{}{} }()
	go func() { u.Clock.Run(ctx, u.compactionInterval()); done <- struct{}{} }()
	<-done
	<-done
	<-done
}

func (u *Updater) refreshInterval() time.Duration {
	if u.RefreshInterval <= 0 {
		return DefaultRefreshInterval
	}
	return u.RefreshInterval
}

func (u *Updater) compactionInterval() time.Duration {
	if u.CompactionInterval <= 0 {
		return DefaultCompactionInterval
	}
	return u.CompactionInterval
}

func (u *Updater) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(u.refreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.refreshOnce(ctx)
		}
	}
}

func (u *Updater) refreshOnce(ctx context.Context) {
	if u.Refresh == nil {
		return
	}
	for _, cand := range u.Cache.RefreshCandidates() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, addrs, negative, ttl, dnssec, err := u.Refresh(ctx, cand.Domain, cand.Type)
		if err != nil {
			u.Log.Warn("cache refresh failed", "domain", cand.Domain, "type", cand.Type, "error", err)
			u.Cache.ResetRefreshing(cand.Domain, cand.Type)
			time.Sleep(refreshPause)
			continue
		}
		if len(payload) > 0 || negative {
			u.Cache.Insert(cand.Domain, cand.Type, payload, addrs, negative, int64(ttl.Seconds()), dnssec)
		}
		u.Cache.ResetRefreshing(cand.Domain, cand.Type)

		time.Sleep(refreshPause)
	}
}

func (u *Updater) compactionLoop(ctx context.Context) {
	ticker := time.NewTicker(u.compactionInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := u.Cache.Compact()
			u.compactions++
			u.Log.Debug("cache compaction", "removed", removed, "run", u.compactions)
		}
	}
}
