package transport_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint_UDP(t *testing.T) {
	ep, err := transport.ParseEndpoint("udp://203.0.113.1:53")
	require.NoError(t, err)
	assert.Equal(t, transport.SchemeUDP, ep.Scheme)
	assert.Equal(t, "203.0.113.1:53", ep.Addr)
}

func TestParseEndpoint_TCPDefaultPort(t *testing.T) {
	ep, err := transport.ParseEndpoint("tcp://203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, transport.SchemeTCP, ep.Scheme)
	assert.Equal(t, "203.0.113.1:53", ep.Addr)
}

func TestParseEndpoint_TLS(t *testing.T) {
	ep, err := transport.ParseEndpoint("tls://dns.example.com:853")
	require.NoError(t, err)
	assert.Equal(t, transport.SchemeTLS, ep.Scheme)
	assert.Equal(t, "dns.example.com", ep.SNI)
	assert.Equal(t, "dns.example.com:853", ep.Addr)
}

func TestParseEndpoint_HTTPS(t *testing.T) {
	ep, err := transport.ParseEndpoint("https://dns.example.com/dns-query")
	require.NoError(t, err)
	assert.Equal(t, transport.SchemeHTTPS, ep.Scheme)
	assert.Equal(t, "https://dns.example.com/dns-query", ep.URL)
}

func TestParseEndpoint_UnsupportedScheme(t *testing.T) {
	_, err := transport.ParseEndpoint("ftp://example.com")
	assert.Error(t, err)
}

func TestResolveHostnames_LiteralIP(t *testing.T) {
	ep, err := transport.ParseEndpoint("udp://203.0.113.7:53")
	require.NoError(t, err)

	resolved, err := transport.ResolveHostnames(ep)
	require.NoError(t, err)
	require.Len(t, resolved.Addrs, 1)
	assert.Equal(t, "203.0.113.7", resolved.Addrs[0].String())
}
