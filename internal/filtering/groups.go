package filtering

import (
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/helpers"
)

// Group is a client policy group: (id, name, enabled, is_default).
// Exactly one group has IsDefault true; that group can never be deleted or
// disabled by the caller.
type Group struct {
	ID        string
	Name      string
	Enabled   bool
	IsDefault bool
}

// cidrRoute is one configured client→group CIDR mapping.
type cidrRoute struct {
	prefix  netip.Prefix
	groupID string
	order   int // map-iteration index; the higher one wins ties on equal prefix length
}

// cidrMatcher resolves an IP to a group via longest-prefix match. Routes are
// read from a map, so when two configured subnets mask to the same prefix,
// which of them wins is not defined. Immutable once built; swapped wholesale
// via atomic pointer by GroupResolver.LoadClientGroups.
type cidrMatcher struct {
	routes []cidrRoute
}

func newCIDRMatcher(subnets map[string]string) *cidrMatcher {
	m := &cidrMatcher{}
	i := 0
	for cidr, groupID := range subnets {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		m.routes = append(m.routes, cidrRoute{prefix: prefix.Masked(), groupID: groupID, order: i})
		i++
	}
	sort.Slice(m.routes, func(a, b int) bool {
		if m.routes[a].prefix.Bits() != m.routes[b].prefix.Bits() {
			return m.routes[a].prefix.Bits() > m.routes[b].prefix.Bits()
		}
		return m.routes[a].order > m.routes[b].order
	})
	return m
}

func (m *cidrMatcher) lookup(ip netip.Addr) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, r := range m.routes {
		if r.prefix.Contains(ip) {
			return r.groupID, true
		}
	}
	return "", false
}

// atomicCIDRMatcher is an atomic.Pointer[cidrMatcher] that tolerates reads
// before the first Store.
type atomicCIDRMatcher struct {
	p atomic.Pointer[cidrMatcher]
}

func (a *atomicCIDRMatcher) Load() *cidrMatcher {
	m := a.p.Load()
	if m == nil {
		return &cidrMatcher{}
	}
	return m
}

func (a *atomicCIDRMatcher) Store(m *cidrMatcher) {
	a.p.Store(m)
}

type groupEntry struct {
	groupID string
	expiry  int64
}

// GroupResolver implements resolve_group(client_ip) -> group_id: an L-1
// cache of IP->group (one process-wide sync.Map, 60s lifetime, no size
// bound), an explicit IP->group
// map, a longest-prefix CIDR matcher, then the default group fallback.
type GroupResolver struct {
	clock *helpers.CoarseClock

	mu         sync.RWMutex
	explicit   map[netip.Addr]string
	matcher    atomicCIDRMatcher
	defaultID  string
	localCache sync.Map // netip.Addr -> groupEntry, process-wide substitute for thread-local L-1
}

const groupResolveTTLSeconds = 60

func NewGroupResolver(clock *helpers.CoarseClock, defaultGroupID string) *GroupResolver {
	return &GroupResolver{
		clock:     clock,
		explicit:  make(map[netip.Addr]string),
		defaultID: defaultGroupID,
	}
}

// ResolveGroup implements the four-step lookup: cache, explicit map, CIDR,
// default.
func (r *GroupResolver) ResolveGroup(ip netip.Addr) string {
	ip = ip.Unmap()
	now := r.clock.Seconds()

	if v, ok := r.localCache.Load(ip); ok {
		e := v.(groupEntry)
		if now < e.expiry {
			return e.groupID
		}
		r.localCache.Delete(ip)
	}

	groupID := r.resolveSlow(ip)
	r.localCache.Store(ip, groupEntry{groupID: groupID, expiry: now + groupResolveTTLSeconds})
	return groupID
}

func (r *GroupResolver) resolveSlow(ip netip.Addr) string {
	r.mu.RLock()
	if gid, ok := r.explicit[ip]; ok {
		r.mu.RUnlock()
		return gid
	}
	r.mu.RUnlock()

	if gid, ok := r.matcher.Load().lookup(ip); ok {
		return gid
	}
	return r.defaultID
}

// LoadClientGroups reloads the explicit map and CIDR matcher from
// persistence (via the supplied snapshots). The matcher is swapped via
// atomic pointer; the explicit map is cleared then repopulated under lock.
func (r *GroupResolver) LoadClientGroups(explicit map[netip.Addr]string, subnets map[string]string) {
	r.matcher.Store(newCIDRMatcher(subnets))

	r.mu.Lock()
	r.explicit = make(map[netip.Addr]string, len(explicit))
	for ip, gid := range explicit {
		r.explicit[ip] = gid
	}
	r.mu.Unlock()
}

// SetDefaultGroup updates the fallback group id used when no explicit or
// CIDR match is found.
func (r *GroupResolver) SetDefaultGroup(id string) {
	r.mu.Lock()
	r.defaultID = id
	r.mu.Unlock()
}
