package filtering

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/helpers"
)

func parseClientIP(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap(), nil
}

const l1Shards = 64

type l1Entry struct {
	blocked    bool
	insertedAt int64
}

type l1Shard struct {
	mu      sync.RWMutex
	entries map[string]l1Entry
}

// Engine is the public Check/ResolveGroup/Reload surface of the Block
// Filter Engine: a two-tier decision cache (per-worker L0, process-wide
// sharded-map L1) in front of the current, atomically-published BlockIndex.
type Engine struct {
	idx   atomic.Pointer[Index]
	l1    [l1Shards]l1Shard
	clock *helpers.CoarseClock
	group *GroupResolver
	log   *slog.Logger

	compileCfg CompileConfig
}

// NewEngine creates an Engine with an empty, always-allow index. Call
// Reload to compile and publish the real one.
func NewEngine(clock *helpers.CoarseClock, defaultGroupID string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		clock: clock,
		group: NewGroupResolver(clock, defaultGroupID),
		log:   logger,
	}
	for i := range e.l1 {
		e.l1[i].entries = make(map[string]l1Entry)
	}
	empty := NewIndex(defaultGroupID, 1000)
	empty.SetGroupMask(defaultGroupID, ManualSourceBit)
	e.idx.Store(empty)
	return e
}

func (e *Engine) shardFor(key string) *l1Shard {
	h := fnv1a(key)
	return &e.l1[h%l1Shards]
}

func fnv1a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

func decisionKey(domain, groupID string) string {
	return domain + "\x00" + groupID
}

// Check implements check(domain, group_id) -> Allow | Block. l0 is the
// calling worker's own per-goroutine cache (nil is accepted and simply
// skips the L0 tier).
func (e *Engine) Check(l0 *L0Cache, domain, groupID string) bool {
	domain = NormalizeDomain(domain)
	key := decisionKey(domain, groupID)
	now := e.clock.Seconds()

	if l0 != nil {
		if blocked, insertedAt, ok := l0.get(key); ok {
			if now-insertedAt < decisionTTLSeconds {
				return blocked
			}
			l0.evict(key)
		}
	}

	shard := e.shardFor(key)
	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()
	if ok && now-entry.insertedAt < decisionTTLSeconds {
		if l0 != nil {
			l0.put(key, entry.blocked, entry.insertedAt)
		}
		return entry.blocked
	}

	blocked := e.idx.Load().IsBlocked(domain, groupID)

	shard.mu.Lock()
	shard.entries[key] = l1Entry{blocked: blocked, insertedAt: now}
	shard.mu.Unlock()
	if l0 != nil {
		l0.put(key, blocked, now)
	}
	return blocked
}

// ResolveGroup implements resolve_group(client_ip) -> group_id.
func (e *Engine) ResolveGroup(ip string) string {
	addr, err := parseClientIP(ip)
	if err != nil {
		return e.group.defaultID
	}
	return e.group.ResolveGroup(addr)
}

// Reload compiles a fresh BlockIndex from cfg without holding any exclusive
// lock during the (possibly slow, HTTP-performing) compile, then atomically
// swaps the published pointer and clears L1 entirely. The calling
// goroutine's own L0 (if any) is cleared too; other workers' L0 entries
// simply expire on their own 60s TTL.
func (e *Engine) Reload(ctx context.Context, cfg CompileConfig, callerL0 *L0Cache) {
	e.compileCfg = cfg
	fresh := Compile(ctx, cfg, e.log)
	e.idx.Store(fresh)

	for i := range e.l1 {
		e.l1[i].mu.Lock()
		e.l1[i].entries = make(map[string]l1Entry)
		e.l1[i].mu.Unlock()
	}
	if callerL0 != nil {
		callerL0.clear()
	}
}

// LoadClientGroups reloads the explicit client map and CIDR matcher.
func (e *Engine) LoadClientGroups(explicit map[string]string, subnets map[string]string) {
	parsed := make(map[netip.Addr]string, len(explicit))
	for ipStr, gid := range explicit {
		if addr, err := parseClientIP(ipStr); err == nil {
			parsed[addr] = gid
		}
	}
	e.group.LoadClientGroups(parsed, subnets)
}

// CurrentIndex returns the currently published index, for diagnostics/tests.
func (e *Engine) CurrentIndex() *Index { return e.idx.Load() }
