package engine

import "math/rand/v2"

// RandomSource yields samples in [0, 1).
//
// Implementations used from several goroutines must be safe for concurrent
// use. Tests inject fixed sequences to make draws deterministic.
type RandomSource interface {
	Float64() float64
}

// DefaultSource draws from the runtime's goroutine-safe generator.
type DefaultSource struct{}

// Float64 returns a pseudo-random sample in [0, 1).
func (DefaultSource) Float64() float64 {
	return rand.Float64()
}

// SeededSource is a deterministic source for reproducible runs. It is not
// safe for concurrent use.
type SeededSource struct {
	r *rand.Rand
}

// NewSeededSource returns a source seeded with seed.
func NewSeededSource(seed uint64) *SeededSource {
	return &SeededSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededSource) Float64() float64 {
	return s.r.Float64()
}
