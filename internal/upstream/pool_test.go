package upstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/dnsmsg"
	"github.com/jroosing/hydradns/internal/events"
	"github.com/jroosing/hydradns/internal/transport"
	"github.com/jroosing/hydradns/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDialer is a transport.Dialer stub keyed by endpoint address, with a
// per-call hook so tests can script truncation/failure behavior.
type fakeDialer struct {
	send func(ctx context.Context, wire []byte, ep transport.Endpoint) ([]byte, error)
}

func (f *fakeDialer) Send(ctx context.Context, wire []byte, ep transport.Endpoint) ([]byte, error) {
	return f.send(ctx, wire, ep)
}

func TestPool_FirstGroupSucceeds(t *testing.T) {
	udp := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		return []byte("response"), nil
	}}

	p := &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Priority: 0, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{ep("10.0.0.1:53")}},
		},
		Dialers: upstream.Dialers{UDP: udp},
	}

	resp, err := p.Query(context.Background(), "example.com", dnsmsg.TypeA, []byte("query"))
	require.NoError(t, err)
	assert.Equal(t, []byte("response"), resp)
}

func TestPool_FallsThroughOnTransportError(t *testing.T) {
	// Dialers is scheme-wide, so both groups share this single UDP dialer;
	// it fails only for the primary group's endpoint, forcing fallthrough.
	dialer := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		if e.Addr == "10.0.0.1:53" {
			return nil, assertErr
		}
		return []byte("from-secondary"), nil
	}}

	p := &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Priority: 0, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{ep("10.0.0.1:53")}},
			{Name: "secondary", Priority: 1, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{ep("10.0.0.2:53")}},
		},
		Dialers: upstream.Dialers{UDP: dialer},
	}

	resp, err := p.Query(context.Background(), "example.com", dnsmsg.TypeA, []byte("query"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-secondary"), resp)
}

func TestPool_AllGroupsUnreachable(t *testing.T) {
	failing := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		return nil, assertErr
	}}

	p := &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Priority: 0, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{ep("10.0.0.1:53")}},
		},
		Dialers: upstream.Dialers{UDP: failing},
	}

	_, err := p.Query(context.Background(), "example.com", dnsmsg.TypeA, []byte("query"))
	assert.ErrorIs(t, err, upstream.ErrAllServersUnreachable)
}

func TestPool_UnhealthyGroupIsSkipped(t *testing.T) {
	neverCalled := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		t.Fatal("unhealthy endpoint's dialer should not be invoked")
		return nil, nil
	}}
	working := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		return []byte("ok"), nil
	}}

	unhealthyEP := ep("10.0.0.1:53")
	healthyEP := ep("10.0.0.2:53")

	hc := upstream.NewHealthChecker(nil)
	hc.UnhealthyAfter = 1
	hc.RecordResult(unhealthyEP, false)

	p := &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Priority: 0, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{unhealthyEP}},
			{Name: "secondary", Priority: 1, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{healthyEP}},
		},
		Dialers: upstream.Dialers{UDP: &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
			if e.Addr == unhealthyEP.Addr {
				return neverCalled.send(ctx, wire, e)
			}
			return working.send(ctx, wire, e)
		}}},
		Health: hc,
	}

	resp, err := p.Query(context.Background(), "example.com", dnsmsg.TypeA, []byte("query"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp)
}

func TestPool_EmitsQueryEvents(t *testing.T) {
	udp := &fakeDialer{send: func(ctx context.Context, wire []byte, e transport.Endpoint) ([]byte, error) {
		return []byte("ok"), nil
	}}

	ch, out := events.NewChannel()
	p := &upstream.Pool{
		Groups: []upstream.PoolGroup{
			{Name: "primary", Priority: 0, Strategy: upstream.Failover{}, Endpoints: []upstream.Endpoint{ep("10.0.0.1:53")}},
		},
		Dialers: upstream.Dialers{UDP: udp},
		Emitter: ch,
	}

	_, err := p.Query(context.Background(), "example.com", dnsmsg.TypeA, []byte("query"))
	require.NoError(t, err)

	select {
	case ev := <-out:
		assert.Equal(t, "example.com", ev.Domain)
		assert.True(t, ev.Success)
		assert.Equal(t, "primary", ev.PoolName)
	case <-time.After(time.Second):
		t.Fatal("expected a QueryEvent")
	}
}

var assertErr = context.DeadlineExceeded
