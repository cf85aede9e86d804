package upstream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanced_PrefersLowerLatencyOverTime(t *testing.T) {
	fast, slow := ep("10.0.0.1:53"), ep("10.0.0.2:53")
	endpoints := []upstream.Endpoint{fast, slow}

	attempt := func(ctx context.Context, e upstream.Endpoint) ([]byte, time.Duration, error) {
		if e.Addr == fast.Addr {
			return []byte("ok"), time.Millisecond, nil
		}
		return []byte("ok"), 200 * time.Millisecond, nil
	}

	b := upstream.NewBalanced()
	// Seed both endpoints with a sample so weighting reflects latency, not
	// the zero-sample fallback.
	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), endpoints, attempt, nil)
		require.NoError(t, err)
	}

	picks := map[string]int{}
	for i := 0; i < 200; i++ {
		result, err := b.Execute(context.Background(), endpoints, attempt, nil)
		require.NoError(t, err)
		picks[result.Endpoint.Addr]++
	}

	assert.Greater(t, picks[fast.Addr], picks[slow.Addr])
}

func TestBalanced_RemovesFailedEndpointFromRound(t *testing.T) {
	broken, ok := ep("10.0.0.1:53"), ep("10.0.0.2:53")
	endpoints := []upstream.Endpoint{broken, ok}
	boom := errors.New("boom")

	attempt := func(ctx context.Context, e upstream.Endpoint) ([]byte, time.Duration, error) {
		if e.Addr == broken.Addr {
			return nil, 0, boom
		}
		return []byte("ok"), time.Millisecond, nil
	}

	b := upstream.NewBalanced()
	result, err := b.Execute(context.Background(), endpoints, attempt, nil)
	require.NoError(t, err)
	assert.Equal(t, ok.Addr, result.Endpoint.Addr)
}

func TestBalanced_AllFail(t *testing.T) {
	endpoints := []upstream.Endpoint{ep("10.0.0.1:53")}
	boom := errors.New("boom")
	attempt := func(ctx context.Context, e upstream.Endpoint) ([]byte, time.Duration, error) {
		return nil, 0, boom
	}

	b := upstream.NewBalanced()
	_, err := b.Execute(context.Background(), endpoints, attempt, nil)
	assert.ErrorIs(t, err, boom)
}
