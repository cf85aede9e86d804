package resolver_test

import (
	"context"
	"testing"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/resolver"
	"github.com/jroosing/hydradns/internal/transport"
	"github.com/jroosing/hydradns/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	send func(ctx context.Context, wire []byte, ep transport.Endpoint) ([]byte, error)
}

func (f *fakeDialer) Send(ctx context.Context, wire []byte, ep transport.Endpoint) ([]byte, error) {
	return f.send(ctx, wire, ep)
}

func ep(addr string) upstream.Endpoint {
	e, err := upstream.ParseEndpoint("udp://" + addr)
	if err != nil {
		panic(err)
	}
	return e
}

func TestCoreLayer_DelegatesToPool(t *testing.T) {
	udp := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		return []byte("resp"), nil
	}}
	pool := &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{ep("10.0.0.1:53")}},
		},
		Dialers: upstream.Dialers{UDP: udp},
	}

	layer := resolver.NewCoreLayer(pool)
	req := queryPacket("example.com", dnsmsg.TypeA)

	res, err := layer.Resolve(context.Background(), resolver.Query{Domain: "example.com", Type: dnsmsg.TypeA, Request: req})
	require.NoError(t, err)
	assert.Equal(t, []byte("resp"), res.Wire)
	assert.Equal(t, "upstream", res.Source)
}

func TestCoreLayer_PropagatesPoolError(t *testing.T) {
	pool := &upstream.Pool{} // no groups configured

	layer := resolver.NewCoreLayer(pool)
	req := queryPacket("example.com", dnsmsg.TypeA)

	_, err := layer.Resolve(context.Background(), resolver.Query{Domain: "example.com", Type: dnsmsg.TypeA, Request: req})
	assert.ErrorIs(t, err, upstream.ErrAllServersUnreachable)
}
