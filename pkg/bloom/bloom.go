// Package bloom implements a fixed-size Bloom filter used as an
// advisory pre-filter over rule fingerprints. A false result is
// definitive; a true result only permits. There is no removal.
package bloom

import (
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	minBits   = 100
	maxHashes = 16
)

// Filter is a concurrent Bloom filter. Insertions and probes may run
// from any number of goroutines; bits are set and read atomically.
type Filter struct {
	words      []atomic.Uint64
	m          uint64 // bit array size
	k          int    // hash count
	insertions atomic.Uint64
}

// New sizes a filter for an expected item count and target
// false-positive rate: m = ceil(-n ln p / ln²2), k = ceil((m/n) ln 2),
// clamped to m >= 100 and k in [1, 16]. Out-of-range inputs fall back
// to the defaults 1024 bits and 3 hashes.
func New(expectedItems uint, fpRate float64) *Filter {
	m, k := optimalParams(expectedItems, fpRate)
	return NewWithSize(m, k)
}

// NewWithSize builds a filter from an explicit bit count and hash
// count, clamped to the same floors as New.
func NewWithSize(m uint64, k int) *Filter {
	if m < minBits {
		m = minBits
	}
	if k < 1 {
		k = 1
	}
	if k > maxHashes {
		k = maxHashes
	}
	return &Filter{
		words: make([]atomic.Uint64, (m+63)/64),
		m:     m,
		k:     k,
	}
}

func optimalParams(n uint, p float64) (uint64, int) {
	if n == 0 || p <= 0 || p >= 1 {
		return 1024, 3
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m < minBits {
		m = minBits
	}
	k := int(math.Ceil(float64(m) / float64(n) * ln2))
	return m, k
}

// baseHashes returns the two independent 64-bit hashes the derived
// index sequence is built from: xxhash and DJB2.
func baseHashes(data []byte) (uint64, uint64) {
	h1 := xxhash.Sum64(data)
	h2 := uint64(5381)
	for _, b := range data {
		h2 = h2*33 + uint64(b)
	}
	return h1, h2
}

// indexes yields the k bit positions for data via the
// Kirsch-Mitzenmacher combination h_i = h1 + i*(h2 + i + 1) mod m.
func (f *Filter) indexes(data []byte, fn func(idx uint64) bool) {
	h1, h2 := baseHashes(data)
	for i := uint64(0); i < uint64(f.k); i++ {
		if !fn((h1 + i*(h2+i+1)) % f.m) {
			return
		}
	}
}

// atomicOr sets the bits in mask on w atomically.
func atomicOr(w *atomic.Uint64, mask uint64) {
	for {
		old := w.Load()
		if w.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// Insert adds the item's fingerprint to the filter.
func (f *Filter) Insert(data []byte) {
	f.indexes(data, func(idx uint64) bool {
		atomicOr(&f.words[idx/64], 1<<(idx%64))
		return true
	})
	f.insertions.Add(1)
}

// PossiblyContains reports whether the item may have been inserted.
// False is definitive; true may be a false positive.
func (f *Filter) PossiblyContains(data []byte) bool {
	present := true
	f.indexes(data, func(idx uint64) bool {
		if f.words[idx/64].Load()&(1<<(idx%64)) == 0 {
			present = false
			return false
		}
		return true
	})
	return present
}

// Size returns the bit array size m.
func (f *Filter) Size() uint64 { return f.m }

// HashCount returns the number of derived hash functions k.
func (f *Filter) HashCount() int { return f.k }

// Insertions returns the number of Insert calls.
func (f *Filter) Insertions() uint64 { return f.insertions.Load() }

// EstimatedFPRate returns the current false-positive probability
// (1 - e^(-kn/m))^k for the inserted item count.
func (f *Filter) EstimatedFPRate() float64 {
	n := f.insertions.Load()
	knm := float64(f.k) * float64(n) / float64(f.m)
	return math.Pow(1-math.Exp(-knm), float64(f.k))
}

// ApproximateCount estimates the distinct inserted items from the bit
// population: n* = -(m/k) ln(1 - X/m). A saturated filter returns the
// raw insertion count, the best remaining estimate.
func (f *Filter) ApproximateCount() uint64 {
	var set uint64
	for i := range f.words {
		set += uint64(bits.OnesCount64(f.words[i].Load()))
	}
	if set == 0 {
		return 0
	}
	if set >= f.m {
		return f.insertions.Load()
	}
	est := -float64(f.m) / float64(f.k) * math.Log(1-float64(set)/float64(f.m))
	return uint64(math.Round(est))
}
