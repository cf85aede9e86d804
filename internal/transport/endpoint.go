package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Scheme identifies which concrete Dialer an Endpoint requires.
type Scheme int

const (
	SchemeUDP Scheme = iota
	SchemeTCP
	SchemeTLS
	SchemeHTTPS
)

func (s Scheme) String() string {
	switch s {
	case SchemeUDP:
		return "udp"
	case SchemeTCP:
		return "tcp"
	case SchemeTLS:
		return "tls"
	default:
		return "https"
	}
}

// Endpoint is a tagged union over the four upstream transports: UDP(addr),
// TCP(addr), TLS(addr, sni), HTTPS(url, pre-resolved addrs). ParseEndpoint
// leaves Addrs empty; ResolveHostnames fills it with at most one IPv4 + one
// IPv6 address for a hostname, or with the literal IP itself. The upstream
// pool does not call ResolveHostnames.
type Endpoint struct {
	Scheme Scheme
	Addr   string // host:port, as configured (may be a hostname)
	SNI    string // TLS server name, SchemeTLS only
	URL    string // DoH request URL template, SchemeHTTPS only

	Addrs []net.IP // resolved A/AAAA addresses, at most one of each family
}

func (e Endpoint) String() string {
	switch e.Scheme {
	case SchemeHTTPS:
		return e.URL
	default:
		return fmt.Sprintf("%s://%s", e.Scheme, e.Addr)
	}
}

// ParseEndpoint parses one of the four upstream endpoint string forms:
// udp://host:port, tcp://host:port, tls://host:port (SNI = host),
// https://host[:port]/dns-query.
func ParseEndpoint(s string) (Endpoint, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("transport: invalid endpoint %q: %w", s, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "udp":
		return Endpoint{Scheme: SchemeUDP, Addr: withDefaultPort(u.Host, "53")}, nil
	case "tcp":
		return Endpoint{Scheme: SchemeTCP, Addr: withDefaultPort(u.Host, "53")}, nil
	case "tls":
		host, _, splitErr := net.SplitHostPort(u.Host)
		if splitErr != nil {
			host = u.Host
		}
		return Endpoint{Scheme: SchemeTLS, Addr: withDefaultPort(u.Host, "853"), SNI: host}, nil
	case "https":
		return Endpoint{Scheme: SchemeHTTPS, Addr: withDefaultPort(u.Host, "443"), URL: s}, nil
	default:
		return Endpoint{}, fmt.Errorf("transport: unsupported endpoint scheme %q", u.Scheme)
	}
}

func withDefaultPort(hostport, port string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, port)
}

// resolveAddrs looks up host for A/AAAA records, keeping at most one
// address per family, per spec: "resolved to at most one IPv4 + one IPv6".
func resolveAddrs(host string) ([]net.IP, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	var v4, v6 net.IP
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			if v4 == nil {
				v4 = ip4
			}
		} else if v6 == nil {
			v6 = ip
		}
	}
	var out []net.IP
	if v4 != nil {
		out = append(out, v4)
	}
	if v6 != nil {
		out = append(out, v6)
	}
	return out, nil
}

// ResolveHostnames resolves Endpoint.Addr's host to at most one IPv4 and one
// IPv6 address, populating Addrs. An endpoint already given a literal IP gets
// that IP as its only Addrs entry, without a lookup.
func ResolveHostnames(ep Endpoint) (Endpoint, error) {
	host, _, err := net.SplitHostPort(ep.Addr)
	if err != nil {
		host = ep.Addr
	}
	if ip := net.ParseIP(host); ip != nil {
		ep.Addrs = []net.IP{ip}
		return ep, nil
	}
	if ep.Scheme == SchemeHTTPS {
		u, err := url.Parse(ep.URL)
		if err == nil {
			host = u.Hostname()
		}
	}
	addrs, err := resolveAddrs(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("transport: resolving %q: %w", host, err)
	}
	ep.Addrs = addrs
	return ep, nil
}
