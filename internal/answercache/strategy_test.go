package answercache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHitRate_ScoresHitsOverAge(t *testing.T) {
	e := &entry{insertedAtSec: 100}
	e.hitCount.Store(10)

	s := HitRate{}
	assert.InDelta(t, 1.0, s.Score(e, 110), 0.0001) // 10 hits / 10s age

	// Zero age falls back to raw hit count to avoid a divide-by-zero.
	assert.InDelta(t, 10.0, s.Score(e, 100), 0.0001)
}

func TestLFU_ScoresRawHitCount(t *testing.T) {
	e := &entry{insertedAtSec: 100}
	e.hitCount.Store(7)

	s := LFU{}
	assert.InDelta(t, 7.0, s.Score(e, 500), 0.0001)
}

func TestLFUK_ZeroWithFewerThanTwoSamples(t *testing.T) {
	e := &entry{insertedAtSec: 100}
	s := LFUK{K: 3}
	assert.Equal(t, 0.0, s.Score(e, 100))

	e.recordAccess(100, 3)
	assert.Equal(t, 0.0, s.Score(e, 100))
}

func TestLFUK_ScoresSamplesOverWindowSpan(t *testing.T) {
	e := &entry{insertedAtSec: 100}
	s := LFUK{K: 3}

	e.recordAccess(100, 3)
	e.recordAccess(102, 3)
	e.recordAccess(105, 3)

	// window span is newest-oldest = 5, k = 3 samples retained
	got := s.Score(e, 105)
	assert.InDelta(t, float64(3)/5.0, got, 0.0001)
}

func TestLFUK_WindowIsBoundedToK(t *testing.T) {
	e := &entry{insertedAtSec: 100}
	s := LFUK{K: 2}

	e.recordAccess(100, 2)
	e.recordAccess(101, 2)
	e.recordAccess(110, 2)

	got := s.Score(e, 110)
	assert.InDelta(t, float64(2)/9.0, got, 0.0001)
}
