package answercache_test

import (
	"net"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/answercache"
	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/helpers"
	"github.com/jroosing/hydradns/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int) (*answercache.Cache, *helpers.CoarseClock) {
	clock := helpers.NewCoarseClock()
	cache := answercache.New(answercache.DefaultConfig(maxEntries), clock)
	return cache, clock
}

func TestCache_MissBeforeInsert(t *testing.T) {
	cache, _ := newTestCache(100)
	_, found := cache.Get(nil, "example.com", dnsmsg.TypeA)
	assert.False(t, found)
	assert.EqualValues(t, 1, cache.Stats().Misses)
}

func TestCache_InsertThenHit(t *testing.T) {
	cache, _ := newTestCache(100)
	addrs := []net.IP{net.ParseIP("1.2.3.4")}
	cache.Insert("example.com", dnsmsg.TypeA, []byte("wire"), addrs, false, 300, ports.DNSSECIndeterminate)

	result, found := cache.Get(nil, "example.com", dnsmsg.TypeA)
	require.True(t, found)
	assert.Equal(t, []byte("wire"), result.Payload)
	assert.Equal(t, addrs, result.Addresses)
	assert.False(t, result.Stale)
}

func TestCache_SkipsEmptyNonNegativePayload(t *testing.T) {
	cache, _ := newTestCache(100)
	cache.Insert("example.com", dnsmsg.TypeA, nil, nil, false, 300, ports.DNSSECIndeterminate)
	_, found := cache.Get(nil, "example.com", dnsmsg.TypeA)
	assert.False(t, found)
}

func TestCache_StaleUsableReturnsPayloadAndClaimsRefresh(t *testing.T) {
	cache, clock := newTestCache(100)
	cache.Insert("example.com", dnsmsg.TypeA, []byte("wire"), nil, false, 1, ports.DNSSECIndeterminate)

	clock.Advance(2 * time.Second)

	result, found := cache.Get(nil, "example.com", dnsmsg.TypeA)
	require.True(t, found)
	assert.True(t, result.Stale)
	assert.True(t, result.NeedsRefresh, "first stale hit should claim the refresh latch")

	result2, found2 := cache.Get(nil, "example.com", dnsmsg.TypeA)
	require.True(t, found2)
	assert.True(t, result2.Stale)
	assert.False(t, result2.NeedsRefresh, "second stale hit should not re-claim an active refresh")
}

func TestCache_HardExpiredIsMiss(t *testing.T) {
	clock := helpers.NewCoarseClock()
	cfg := answercache.DefaultConfig(100)
	cfg.StaleGraceSeconds = 1
	cache := answercache.New(cfg, clock)
	cache.Insert("example.com", dnsmsg.TypeA, []byte("wire"), nil, false, 1, ports.DNSSECIndeterminate)

	clock.Advance(5 * time.Second)

	_, found := cache.Get(nil, "example.com", dnsmsg.TypeA)
	assert.False(t, found)
	assert.EqualValues(t, 1, cache.Stats().LazyDeletions)
}

func TestCache_ResetRefreshingAllowsNextStaleHitToClaimAgain(t *testing.T) {
	cache, clock := newTestCache(100)
	cache.Insert("example.com", dnsmsg.TypeA, []byte("wire"), nil, false, 1, ports.DNSSECIndeterminate)
	clock.Advance(2 * time.Second)

	result, _ := cache.Get(nil, "example.com", dnsmsg.TypeA)
	require.True(t, result.NeedsRefresh)

	cache.ResetRefreshing("example.com", dnsmsg.TypeA)

	result2, _ := cache.Get(nil, "example.com", dnsmsg.TypeA)
	assert.True(t, result2.NeedsRefresh)
}

func TestCache_CompactRemovesHardExpired(t *testing.T) {
	clock := helpers.NewCoarseClock()
	cfg := answercache.DefaultConfig(100)
	cfg.StaleGraceSeconds = 1
	cache := answercache.New(cfg, clock)
	cache.Insert("example.com", dnsmsg.TypeA, []byte("wire"), nil, false, 1, ports.DNSSECIndeterminate)

	clock.Advance(5 * time.Second)

	removed := cache.Compact()
	assert.Equal(t, 1, removed)
	assert.EqualValues(t, 0, cache.Stats().Size)
}

func TestCache_L1FastPathOnPositiveAddresses(t *testing.T) {
	cache, _ := newTestCache(100)
	l1 := answercache.NewL1Cache()
	addrs := []net.IP{net.ParseIP("5.6.7.8")}
	cache.Insert("example.com", dnsmsg.TypeA, []byte("wire"), addrs, false, 300, ports.DNSSECIndeterminate)

	_, found := cache.Get(l1, "example.com", dnsmsg.TypeA)
	require.True(t, found)

	result, found := cache.Get(l1, "example.com", dnsmsg.TypeA)
	require.True(t, found)
	assert.Equal(t, addrs, result.Addresses)
}

func TestCache_RefreshCandidatesRespectThresholdAndScore(t *testing.T) {
	clock := helpers.NewCoarseClock()
	cfg := answercache.DefaultConfig(100)
	cfg.RefreshThreshold = 0.5
	cache := answercache.New(cfg, clock)

	cache.Insert("fresh.example.com", dnsmsg.TypeA, []byte("wire"), nil, false, 100, ports.DNSSECIndeterminate)
	cache.Insert("stale.example.com", dnsmsg.TypeA, []byte("wire"), nil, false, 10, ports.DNSSECIndeterminate)

	clock.Advance(6 * time.Second)

	candidates := cache.RefreshCandidates()
	var domains []string
	for _, c := range candidates {
		domains = append(domains, c.Domain)
	}
	assert.Contains(t, domains, "stale.example.com")
	assert.NotContains(t, domains, "fresh.example.com")
}
