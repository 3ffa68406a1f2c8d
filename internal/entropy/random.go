// Package entropy provides the seeded random source that drives every simulation run.
// One Source belongs to one run; nothing in the module uses a package-level generator.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"
	"sort"
)

// Source is a deterministic random stream with draw-position tracking.
// It is not safe for concurrent use; give each goroutine its own Source.
type Source struct {
	seed  int64
	rng   *mrand.Rand
	draws int64
}

// NewSource creates a Source seeded with seed.
func NewSource(seed int64) *Source {
	return &Source{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Seed returns the seed the Source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Draws returns the number of primitive draws taken since creation.
func (s *Source) Draws() int64 {
	return s.draws
}

// Float returns a uniform float64 in [0, 1).
func (s *Source) Float() float64 {
	s.draws++
	return s.rng.Float64()
}

// Intn returns a uniform int in [0, n). Panics if n <= 0.
func (s *Source) Intn(n int) int {
	s.draws++
	return s.rng.Intn(n)
}

// IntRange returns a uniform int in [lo, hi], both ends inclusive.
// hi-lo+1 must not overflow an int.
func (s *Source) IntRange(lo, hi int) int {
	return lo + s.Intn(hi-lo+1)
}

// Int63 returns a non-negative int64, used to seed derived generators.
func (s *Source) Int63() int64 {
	s.draws++
	return s.rng.Int63()
}

// Normal returns a draw from N(0, sd²). A zero sd still advances the stream.
func (s *Source) Normal(sd float64) float64 {
	s.draws++
	return s.rng.NormFloat64() * sd
}

// SampleUniform draws k indices from [0, n) with replacement, each equally likely.
func (s *Source) SampleUniform(n, k int) []int {
	out := make([]int, k)
	for i := range out {
		out[i] = s.Intn(n)
	}
	return out
}

// SampleWeighted draws k indices with replacement from the categorical
// distribution probs. probs must be non-negative and sum to 1; the last
// index with positive weight absorbs floating-point shortfall in the
// cumulative sum, so a zero-weight index is never drawn.
func (s *Source) SampleWeighted(probs []float64, k int) []int {
	cum := make([]float64, len(probs))
	total := 0.0
	last := len(probs) - 1
	for i, p := range probs {
		total += p
		cum[i] = total
		if p > 0 {
			last = i
		}
	}

	out := make([]int, k)
	for i := range out {
		u := s.Float()
		idx := sort.Search(len(cum), func(j int) bool { return cum[j] > u })
		if idx > last {
			idx = last
		}
		out[i] = idx
	}
	return out
}

// Derive returns the seed of an independent stream for the given stream index.
// The mix is splitmix64, so neighbouring stream indices land far apart.
func Derive(seed int64, stream int) int64 {
	z := uint64(seed) + uint64(stream+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return int64(z & math.MaxInt64)
}

// RandomSeed returns a fresh seed from crypto/rand for callers that did not pin one.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 1055
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) & math.MaxInt64)
}
