package dnsmsg_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery_Basic(t *testing.T) {
	wire := dnsmsg.BuildQuery("example.com", dnsmsg.TypeA, false)
	require.NotEmpty(t, wire)

	pkt, err := dnsmsg.ParsePacket(wire)
	require.NoError(t, err)

	assert.NotZero(t, pkt.Header.Flags&dnsmsg.RDFlag, "RD flag should be set")
	require.Len(t, pkt.Questions, 1)
	assert.Equal(t, "example.com", pkt.Questions[0].Name)
	assert.Equal(t, uint16(dnsmsg.TypeA), pkt.Questions[0].Type)
	assert.Empty(t, pkt.Additionals, "no OPT record expected without DNSSEC")
}

func TestBuildQuery_DNSSECOk(t *testing.T) {
	wire := dnsmsg.BuildQuery("example.com", dnsmsg.TypeAAAA, true)
	require.NotEmpty(t, wire)

	pkt, err := dnsmsg.ParsePacket(wire)
	require.NoError(t, err)

	require.Len(t, pkt.Additionals, 1)
	opt := dnsmsg.ExtractOPT(pkt.Additionals)
	require.NotNil(t, opt)
	assert.True(t, opt.DNSSECOk)
	assert.Equal(t, uint16(dnsmsg.EDNSDefaultUDPPayloadSize), opt.UDPPayloadSize)
}

func TestBuildQuery_RandomizesID(t *testing.T) {
	a := dnsmsg.BuildQuery("example.com", dnsmsg.TypeA, false)
	b := dnsmsg.BuildQuery("example.com", dnsmsg.TypeA, false)
	require.Len(t, a, len(b))
	// IDs occupy the first two wire bytes; astronomically unlikely to
	// collide twice in a row if truly randomized.
	assert.False(t, a[0] == b[0] && a[1] == b[1])
}
