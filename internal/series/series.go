// Package series holds the in-memory price history of one instrument.
package series

import (
	"sync"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// Series is an append-only sequence of price samples in timestamp order.
// It is safe for concurrent readers while a single writer appends.
type Series struct {
	mu      sync.RWMutex
	samples []model.PriceSample

	// maxSamples caps retained history; 0 keeps everything.
	maxSamples int
}

// New creates an empty Series. A positive maxSamples bounds memory by
// dropping the oldest samples; 0 means unbounded.
func New(maxSamples int) *Series {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &Series{maxSamples: maxSamples}
}

// Append adds a sample to the end of the series. No validation is done on
// the price.
func (s *Series) Append(sample model.PriceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)

	// Compact once we hold twice the cap so appends stay amortized O(1).
	if s.maxSamples > 0 && len(s.samples) >= 2*s.maxSamples {
		kept := make([]model.PriceSample, s.maxSamples, 2*s.maxSamples)
		copy(kept, s.samples[len(s.samples)-s.maxSamples:])
		s.samples = kept
	}
}

// LastN returns up to n of the most recent samples in chronological order.
// Fewer than n samples yields everything available.
func (s *Series) LastN(n int) []model.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.windowLocked(n)
	out := make([]model.PriceSample, len(window))
	copy(out, window)
	return out
}

// LastPrices returns the prices of LastN(n).
func (s *Series) LastPrices(n int) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.windowLocked(n)
	out := make([]float64, len(window))
	for i, sample := range window {
		out[i] = sample.Price
	}
	return out
}

// Latest returns the most recent sample.
func (s *Series) Latest() (model.PriceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return model.PriceSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Len returns the number of retained samples.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.samples)
	if s.maxSamples > 0 && n > s.maxSamples {
		return s.maxSamples
	}
	return n
}

// windowLocked returns the tail slice of at most n samples, honouring the
// cap. Caller must hold the lock.
func (s *Series) windowLocked(n int) []model.PriceSample {
	if n <= 0 {
		return nil
	}
	avail := len(s.samples)
	if s.maxSamples > 0 && avail > s.maxSamples {
		avail = s.maxSamples
	}
	if n > avail {
		n = avail
	}
	return s.samples[len(s.samples)-n:]
}
