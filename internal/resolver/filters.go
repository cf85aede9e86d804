package resolver

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/jroosing/hydradns/internal/dnsmsg"
)

// FilterConfig holds the two filter layers' tunables (spec §4.L).
type FilterConfig struct {
	BlockNonFQDN bool   // if set, bare (dot-less) names are dropped or rewritten
	LocalDomain  string // appended to bare names instead of dropping, when non-empty
}

// privatePTRLayer answers PTR queries for private/loopback/link-local
// addresses locally, with a synthesized empty NOERROR response, instead of
// asking upstream and leaking LAN topology off-network.
type privatePTRLayer struct {
	next Layer
}

// NewPrivatePTRLayer wraps next with the private-PTR short-circuit.
func NewPrivatePTRLayer(next Layer) Layer {
	return &privatePTRLayer{next: next}
}

func (l *privatePTRLayer) Resolve(ctx context.Context, q Query) (Resolution, error) {
	if q.Type == dnsmsg.TypePTR {
		if ip, ok := reverseLookupAddr(q.Domain); ok && isPrivateAddr(ip) {
			wire, err := emptyNoErrorResponse(q.Request)
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{Wire: wire, Source: "private-ptr-filter"}, nil
		}
	}
	return l.next.Resolve(ctx, q)
}

// reverseLookupAddr recovers the address a PTR query's reversed domain
// encodes, per RFC 1035 §3.5 (in-addr.arpa) and RFC 3596 §2.5 (ip6.arpa).
func reverseLookupAddr(domain string) (net.IP, bool) {
	name := strings.TrimSuffix(domain, ".")
	switch {
	case strings.HasSuffix(name, ".in-addr.arpa"):
		labels := strings.Split(strings.TrimSuffix(name, ".in-addr.arpa"), ".")
		if len(labels) != 4 {
			return nil, false
		}
		b := make([]byte, 4)
		for i, l := range labels {
			v, err := strconv.Atoi(l)
			if err != nil || v < 0 || v > 255 {
				return nil, false
			}
			b[3-i] = byte(v)
		}
		return net.IP(b), true
	case strings.HasSuffix(name, ".ip6.arpa"):
		labels := strings.Split(strings.TrimSuffix(name, ".ip6.arpa"), ".")
		if len(labels) != 32 {
			return nil, false
		}
		b := make([]byte, 16)
		for i, l := range labels {
			if len(l) != 1 {
				return nil, false
			}
			v, err := strconv.ParseUint(l, 16, 8)
			if err != nil {
				return nil, false
			}
			nibbleIndex := 31 - i
			byteIndex := nibbleIndex / 2
			if nibbleIndex%2 == 0 {
				b[byteIndex] |= byte(v)
			} else {
				b[byteIndex] |= byte(v) << 4
			}
		}
		return net.IP(b), true
	default:
		return nil, false
	}
}

func isPrivateAddr(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

func emptyNoErrorResponse(req dnsmsg.Packet) ([]byte, error) {
	resp := dnsmsg.BuildErrorResponse(req, uint16(dnsmsg.RCodeNoError))
	return resp.Marshal()
}

// fqdnLayer enforces spec §4.L's "block non-FQDN" policy on bare
// (dot-less) query names: either drop (answer NXDOMAIN) or rewrite to
// qualify under LocalDomain, per config.
type fqdnLayer struct {
	cfg  FilterConfig
	next Layer
}

// NewFQDNLayer wraps next with the bare-name policy from cfg. A disabled
// cfg.BlockNonFQDN makes this layer a pure passthrough.
func NewFQDNLayer(cfg FilterConfig, next Layer) Layer {
	return &fqdnLayer{cfg: cfg, next: next}
}

func (l *fqdnLayer) Resolve(ctx context.Context, q Query) (Resolution, error) {
	if !l.cfg.BlockNonFQDN || strings.Contains(strings.TrimSuffix(q.Domain, "."), ".") {
		return l.next.Resolve(ctx, q)
	}

	if l.cfg.LocalDomain == "" {
		wire, err := dnsmsg.BuildErrorResponse(q.Request, uint16(dnsmsg.RCodeNXDomain)).Marshal()
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Wire: wire, Source: "fqdn-filter-dropped"}, nil
	}

	qualified := q
	qualified.Domain = strings.TrimSuffix(q.Domain, ".") + "." + strings.TrimSuffix(l.cfg.LocalDomain, ".")
	return l.next.Resolve(ctx, qualified)
}
