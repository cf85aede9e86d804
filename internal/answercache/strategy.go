package answercache

// lfukWindow bounds how many recent access timestamps an entry retains for
// the LFUK strategy's score = k / (newest - oldest) formula.
const lfukWindow = 5

// Strategy scores a live entry for eviction/refresh-candidacy ranking.
// Lower scores are evicted first; spec §4.I names three selectable
// implementations.
type Strategy interface {
	Score(e *entry, nowSec int64) float64
}

// HitRate scores hit_count / age_seconds: entries accessed often relative
// to how long they have lived rank highest.
type HitRate struct{}

func (HitRate) Score(e *entry, nowSec int64) float64 {
	age := nowSec - e.insertedAtSec
	if age <= 0 {
		age = 1
	}
	return float64(e.hitCount.Load()) / float64(age)
}

// LFU scores raw hit_count: pure least-frequently-used.
type LFU struct{}

func (LFU) Score(e *entry, nowSec int64) float64 {
	return float64(e.hitCount.Load())
}

// LFUK scores k / (newest_access - oldest_access) over the entry's last K
// recorded accesses; an entry with fewer than two samples in its window
// scores 0 (lowest — evicted first, since it has no recency signal yet).
type LFUK struct {
	K int
}

func (s LFUK) Score(e *entry, nowSec int64) float64 {
	k := s.K
	if k <= 0 {
		k = lfukWindow
	}

	e.windowMu.Lock()
	defer e.windowMu.Unlock()
	w := e.window
	if len(w) > k {
		w = w[len(w)-k:]
	}
	if len(w) < 2 {
		return 0
	}
	span := w[len(w)-1] - w[0]
	if span <= 0 {
		return float64(k)
	}
	return float64(k) / float64(span)
}
