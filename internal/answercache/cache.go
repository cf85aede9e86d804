// Package answercache implements the typed answer store described in spec
// §4.I: lazy hard/stale expiry, stale-while-revalidate, a bloom pre-check, a
// process-wide sharded map, and probabilistic/batch eviction under
// configurable scoring strategies.
package answercache

import (
	"math/rand/v2"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/filtering"
	"github.com/jroosing/hydradns/internal/helpers"
	"github.com/jroosing/hydradns/internal/ports"
)

const shardCount = 64

// entry is one cached answer. Fields touched on the hot Get path are
// atomics so readers never take the shard's write lock; fields only ever
// written under the shard lock (payload/ttl/insertedAt, replaced wholesale
// on insert/refresh) are plain.
type entry struct {
	domain string
	qtype  dnsmsg.RecordType

	payload   []byte   // wire bytes served back to the client verbatim
	addresses []net.IP // set only for positive A/AAAA answers, for L1's fast path
	negative  bool
	dnssec    ports.DNSSECStatus

	ttlSeconds    int64
	staleGraceSec int64
	insertedAtSec int64

	lastAccessSec atomic.Int64
	hitCount      atomic.Uint64
	refreshing    atomic.Bool
	deleted       atomic.Bool

	windowMu sync.Mutex
	window   []int64 // last K access timestamps, oldest first, for LFUK
}

func (e *entry) hardExpireAt() int64 { return e.insertedAtSec + e.ttlSeconds + e.staleGraceSec }
func (e *entry) softExpireAt() int64 { return e.insertedAtSec + e.ttlSeconds }
func (e *entry) isHardExpired(now int64) bool { return now >= e.hardExpireAt() }
func (e *entry) isStaleUsable(now int64) bool {
	return now >= e.softExpireAt() && now < e.hardExpireAt()
}

func (e *entry) recordAccess(now int64, k int) {
	e.windowMu.Lock()
	e.window = append(e.window, now)
	if len(e.window) > k {
		e.window = e.window[len(e.window)-k:]
	}
	e.windowMu.Unlock()
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Result is what Get returns on a hit.
type Result struct {
	Payload      []byte
	Addresses    []net.IP
	Negative     bool
	DNSSEC       ports.DNSSECStatus
	Stale        bool // served past its TTL under the stale-grace window
	NeedsRefresh bool // this caller is the one that must trigger a background refresh
}

// Config holds the tunables spec §4.I/§9 names, all with the documented
// defaults.
type Config struct {
	MaxEntries              int
	StaleGraceSeconds       int64
	ProbabilisticEviction   bool    // true: 1/100 random-entry eviction; false: batch eviction
	EvictionProbability     float64 // default 0.01
	BatchEvictionPercentage float64 // default 0.05, only used when ProbabilisticEviction is false
	Strategy                Strategy
	MinScoreThreshold       float64
	MinScoreThresholdFloor  float64
	MinScoreThresholdCeil   float64
	RefreshThreshold        float64 // default 0.75
}

// DefaultConfig returns spec-default tunables with a HitRate strategy.
func DefaultConfig(maxEntries int) Config {
	return Config{
		MaxEntries:              maxEntries,
		StaleGraceSeconds:       30,
		ProbabilisticEviction:   true,
		EvictionProbability:     0.01,
		BatchEvictionPercentage: 0.05,
		Strategy:                HitRate{},
		MinScoreThreshold:       0,
		MinScoreThresholdFloor:  0,
		MinScoreThresholdCeil:   1_000_000,
		RefreshThreshold:        0.75,
	}
}

// Cache is the typed answer store: a bloom pre-check in front of a
// process-wide sharded concurrent map, keyed by (domain, type).
type Cache struct {
	cfg    Config
	clock  *helpers.CoarseClock
	bloom  *filtering.Bloom
	shards [shardCount]shard

	size atomic.Int64

	hits          atomic.Uint64
	misses        atomic.Uint64
	lazyDeletions atomic.Uint64
	evictions     atomic.Uint64

	thresholdMu sync.Mutex
	threshold   float64
}

// New creates an empty Cache sized for cfg.MaxEntries expected live entries.
func New(cfg Config, clock *helpers.CoarseClock) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1
	}
	if cfg.Strategy == nil {
		cfg.Strategy = HitRate{}
	}
	c := &Cache{cfg: cfg, clock: clock, bloom: filtering.NewBloom(cfg.MaxEntries, 0.01), threshold: cfg.MinScoreThreshold}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*entry)
	}
	return c
}

func cacheKey(domain string, qtype dnsmsg.RecordType) string {
	return domain + "\x00" + strconv.Itoa(int(qtype))
}

func (c *Cache) shardFor(key string) *shard {
	return &c.shards[fnv1a(key)%shardCount]
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

// Get implements spec §4.I's get(): bloom pre-check, then thread-local L1
// (l1 may be nil to skip that tier), then the sharded main map.
func (c *Cache) Get(l1 *L1Cache, domain string, qtype dnsmsg.RecordType) (Result, bool) {
	key := cacheKey(domain, qtype)

	if !c.bloom.Check(key) {
		c.misses.Add(1)
		return Result{}, false
	}

	if l1 != nil {
		if addrs, _, ok := l1.get(key, c.clock.Seconds()); ok {
			return Result{Addresses: addrs, DNSSEC: ports.DNSSECIndeterminate}, true
		}
	}

	sh := c.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		return Result{}, false
	}

	now := c.clock.Seconds()

	if e.deleted.Load() || e.isHardExpired(now) {
		e.deleted.Store(true)
		c.misses.Add(1)
		c.lazyDeletions.Add(1)
		return Result{}, false
	}

	if e.isStaleUsable(now) {
		needsRefresh := e.refreshing.CompareAndSwap(false, true)
		c.hits.Add(1)
		e.hitCount.Add(1)
		return Result{Payload: e.payload, Addresses: e.addresses, Negative: e.negative, DNSSEC: e.dnssec, Stale: true, NeedsRefresh: needsRefresh}, true
	}

	c.hits.Add(1)
	e.hitCount.Add(1)
	e.lastAccessSec.Store(now)
	e.recordAccess(now, lfukWindow)
	if l1 != nil && !e.negative && len(e.addresses) > 0 {
		l1.put(key, e.addresses, now+(e.softExpireAt()-now))
	}
	return Result{Payload: e.payload, Addresses: e.addresses, Negative: e.negative, DNSSEC: e.dnssec}, true
}

// Insert implements spec §4.I's insert(): skips empty non-negative
// payloads, evicts (probabilistic or batch) when at capacity, then stores.
func (c *Cache) Insert(domain string, qtype dnsmsg.RecordType, payload []byte, addresses []net.IP, negative bool, ttlSeconds int64, dnssec ports.DNSSECStatus) {
	if len(payload) == 0 && !negative {
		return
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}

	key := cacheKey(domain, qtype)
	now := c.clock.Seconds()

	if int(c.size.Load()) >= c.cfg.MaxEntries {
		c.evictForCapacity()
	}

	sh := c.shardFor(key)
	e := &entry{
		domain:        domain,
		qtype:         qtype,
		payload:       payload,
		addresses:     addresses,
		negative:      negative,
		dnssec:        dnssec,
		ttlSeconds:    ttlSeconds,
		staleGraceSec: c.cfg.StaleGraceSeconds,
		insertedAtSec: now,
	}
	e.lastAccessSec.Store(now)

	sh.mu.Lock()
	_, replaced := sh.entries[key]
	sh.entries[key] = e
	sh.mu.Unlock()

	if !replaced {
		c.size.Add(1)
	}
	c.bloom.Set(key)
}

// ResetRefreshing releases the refresh latch after a background refresh
// completes, per spec §4.I.
func (c *Cache) ResetRefreshing(domain string, qtype dnsmsg.RecordType) {
	key := cacheKey(domain, qtype)
	sh := c.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if ok {
		e.refreshing.Store(false)
	}
}

// evictForCapacity removes one entry (probabilistic mode) or a batch of the
// lowest-scoring entries (deterministic/batch mode), per spec §4.I.
func (c *Cache) evictForCapacity() {
	if c.cfg.ProbabilisticEviction {
		p := c.cfg.EvictionProbability
		if p <= 0 {
			p = 0.01
		}
		if rand.Float64() < p {
			c.evictOneRandom()
		}
		return
	}
	c.batchEvict()
}

func (c *Cache) evictOneRandom() {
	start := rand.IntN(shardCount)
	for i := 0; i < shardCount; i++ {
		sh := &c.shards[(start+i)%shardCount]
		sh.mu.Lock()
		for k := range sh.entries {
			delete(sh.entries, k)
			sh.mu.Unlock()
			c.size.Add(-1)
			c.evictions.Add(1)
			return
		}
		sh.mu.Unlock()
	}
}

type scoredKey struct {
	key   string
	shard int
	score float64
}

// liveEntries snapshots every non-deleted entry's score under the active
// strategy, for both batch eviction and refresh-candidacy ranking.
func (c *Cache) liveEntries() ([]scoredKey, float64) {
	now := c.clock.Seconds()
	var candidates []scoredKey
	var total float64
	for si := range c.shards {
		sh := &c.shards[si]
		sh.mu.RLock()
		for k, e := range sh.entries {
			if e.deleted.Load() {
				continue
			}
			s := c.cfg.Strategy.Score(e, now)
			candidates = append(candidates, scoredKey{key: k, shard: si, score: s})
			total += s
		}
		sh.mu.RUnlock()
	}
	mean := 0.0
	if len(candidates) > 0 {
		mean = total / float64(len(candidates))
	}
	return candidates, mean
}

// batchEvict removes the lowest-scoring entries at or below the adaptive
// minimum-score threshold, capped at cfg.BatchEvictionPercentage*MaxEntries,
// then applies spec §4.I's adaptive-threshold update rule.
func (c *Cache) batchEvict() {
	pct := c.cfg.BatchEvictionPercentage
	if pct <= 0 {
		pct = 0.05
	}
	target := int(float64(c.cfg.MaxEntries) * pct)
	if target < 1 {
		target = 1
	}

	candidates, _ := c.liveEntries()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	c.thresholdMu.Lock()
	minScore := c.threshold
	c.thresholdMu.Unlock()

	evicted := 0
	for _, cand := range candidates {
		if evicted >= target || cand.score > minScore {
			break
		}
		sh := &c.shards[cand.shard]
		sh.mu.Lock()
		if _, ok := sh.entries[cand.key]; ok {
			delete(sh.entries, cand.key)
			evicted++
		}
		sh.mu.Unlock()
	}
	c.size.Add(-int64(evicted))
	c.evictions.Add(uint64(evicted))

	c.updateThreshold(evicted, target)
}

// updateThreshold applies spec §4.I's adaptive-threshold rule after a
// batch eviction.
func (c *Cache) updateThreshold(evicted, target int) {
	effectiveness := float64(evicted) / float64(target)
	c.thresholdMu.Lock()
	defer c.thresholdMu.Unlock()
	switch {
	case effectiveness < 0.5:
		c.threshold *= 0.9
	case effectiveness > 0.95:
		c.threshold *= 1.05
	}
	if c.threshold < c.cfg.MinScoreThresholdFloor {
		c.threshold = c.cfg.MinScoreThresholdFloor
	}
	if c.cfg.MinScoreThresholdCeil > 0 && c.threshold > c.cfg.MinScoreThresholdCeil {
		c.threshold = c.cfg.MinScoreThresholdCeil
	}
}

// RefreshCandidate identifies one entry the Updater's refresh loop should
// re-query upstream for.
type RefreshCandidate struct {
	Domain string
	Type   dnsmsg.RecordType
}

// RefreshCandidates implements spec §4.J's "obtain refresh candidates":
// live entries past RefreshThreshold of their TTL and scoring at or above
// the mean score across all live entries under the active strategy.
func (c *Cache) RefreshCandidates() []RefreshCandidate {
	now := c.clock.Seconds()
	threshold := c.cfg.RefreshThreshold
	if threshold <= 0 {
		threshold = 0.75
	}

	var out []RefreshCandidate
	for si := range c.shards {
		sh := &c.shards[si]
		sh.mu.RLock()
		for _, e := range sh.entries {
			if e.deleted.Load() || e.isHardExpired(now) {
				continue
			}
			elapsed := float64(now-e.insertedAtSec) / float64(e.ttlSeconds)
			if elapsed < threshold {
				continue
			}
			out = append(out, RefreshCandidate{Domain: e.domain, Type: e.qtype})
		}
		sh.mu.RUnlock()
	}

	if len(out) == 0 {
		return out
	}
	_, mean := c.liveEntries()
	filtered := out[:0]
	for _, cand := range out {
		key := cacheKey(cand.Domain, cand.Type)
		sh := c.shardFor(key)
		sh.mu.RLock()
		e, ok := sh.entries[key]
		sh.mu.RUnlock()
		if ok && c.cfg.Strategy.Score(e, now) >= mean {
			filtered = append(filtered, cand)
		}
	}
	return filtered
}

// Compact removes every entry marked for deletion or hard-expired. Safe to
// run concurrently with Get/Insert.
func (c *Cache) Compact() int {
	now := c.clock.Seconds()
	removed := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.deleted.Load() || e.isHardExpired(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	c.size.Add(-int64(removed))
	return removed
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size          int64
	Hits          uint64
	Misses        uint64
	LazyDeletions uint64
	Evictions     uint64
}

func (c *Cache) Stats() Stats {
	return Stats{
		Size:          c.size.Load(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		LazyDeletions: c.lazyDeletions.Load(),
		Evictions:     c.evictions.Load(),
	}
}
