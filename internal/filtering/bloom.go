package filtering

import (
	"hash/maphash"
	"math"
	"sync/atomic"
)

// Bloom is a fixed-size, lock-free probabilistic set membership filter used
// as a fast pre-check in front of the exact-match domain set. Bits live in a
// word-addressed []atomic.Uint64 so Set/Check never take a lock.
//
// Bloom never has false negatives: if Check(k) is false, k was not Set
// since the last Rotate. It can have false positives, bounded by the
// configured target rate.
//
// Rotate replaces the active bit array with a fresh, zeroed generation by
// swapping one pointer; keys Set before the swap are not carried over.
// Readers see either the old generation or the new one, never a mix.
type Bloom struct {
	active atomic.Pointer[bloomGen]
	n      int
	fpRate float64
}

type bloomGen struct {
	bits  []atomic.Uint64
	nbits uint64
	k     uint32
	seed  maphash.Seed
}

// NewBloom sizes a bloom filter for n expected elements at the given target
// false-positive rate (e.g. 0.001 for 0.1%).
func NewBloom(n int, fpRate float64) *Bloom {
	if n < 1 {
		n = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.001
	}
	b := &Bloom{n: n, fpRate: fpRate}
	b.active.Store(newBloomGen(n, fpRate))
	return b
}

func newBloomGen(n int, fpRate float64) *bloomGen {
	m := optimalBits(n, fpRate)
	k := optimalHashes(n, m)
	words := (m + 63) / 64
	return &bloomGen{
		nbits: m,
		k:     k,
		seed:  maphash.MakeSeed(),
		bits:  make([]atomic.Uint64, words),
	}
}

func optimalBits(n int, fp float64) uint64 {
	m := -float64(n) * math.Log(fp) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return uint64(math.Ceil(m))
}

func optimalHashes(n int, m uint64) uint32 {
	k := math.Round(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return uint32(k)
}

func (g *bloomGen) indexes(key string) []uint64 {
	var h maphash.Hash
	h.SetSeed(g.seed)
	_, _ = h.WriteString(key)
	base := h.Sum64()
	h1 := base
	h2 := base>>32 | base<<32
	idx := make([]uint64, g.k)
	for i := uint32(0); i < g.k; i++ {
		salted := h1 + uint64(i)*h2 + uint64(i)*uint64(i)
		idx[i] = salted % g.nbits
	}
	return idx
}

// Set marks key as present in the active generation. Lock-free atomic OR.
func (b *Bloom) Set(key string) {
	g := b.active.Load()
	for _, bit := range g.indexes(key) {
		word, shift := bit/64, bit%64
		mask := uint64(1) << shift
		for {
			old := g.bits[word].Load()
			if old&mask != 0 {
				break
			}
			if g.bits[word].CompareAndSwap(old, old|mask) {
				break
			}
		}
	}
}

// Check reports whether key might be present. False means definitely absent.
func (b *Bloom) Check(key string) bool {
	g := b.active.Load()
	for _, bit := range g.indexes(key) {
		word, shift := bit/64, bit%64
		mask := uint64(1) << shift
		if g.bits[word].Load()&mask == 0 {
			return false
		}
	}
	return true
}

// Rotate builds a fresh, zeroed generation sized for n elements and
// publishes it atomically. Callers must have stopped inserting into the
// previous generation before calling Rotate; readers see either the old
// generation or the new, initially empty one, never a mix.
func (b *Bloom) Rotate(n int) {
	if n < 1 {
		n = 1
	}
	b.n = n
	b.active.Store(newBloomGen(n, b.fpRate))
}

// Len returns the number of bits in the active generation.
func (b *Bloom) Len() uint64 { return b.active.Load().nbits }
