package testutil

import "sync"

// SequenceSource replays a fixed list of samples, wrapping around when it
// runs out. Safe for concurrent use.
type SequenceSource struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

// NewSequenceSource returns a source yielding samples in order. With no
// samples it always returns 0.
func NewSequenceSource(samples ...float64) *SequenceSource {
	return &SequenceSource{samples: samples}
}

// Float64 returns the next sample.
func (s *SequenceSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0
	}
	v := s.samples[s.next%len(s.samples)]
	s.next++
	return v
}

// Calls returns how many samples have been consumed.
func (s *SequenceSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
