package engine

import (
	"math/rand/v2"
	"sync"
)

// PriceSource yields the price change of ticker on tick.
type PriceSource interface {
	Delta(ticker string, tick int64) float64
}

// PriceSourceFunc is a function adapter for PriceSource.
type PriceSourceFunc func(ticker string, tick int64) float64

func (f PriceSourceFunc) Delta(ticker string, tick int64) float64 {
	return f(ticker, tick)
}

// DefaultStep is the random-walk step size.
const DefaultStep = 0.1

// RandomWalk draws deltas uniformly from [-step/2, step/2). The same seed
// yields the same sequence when instruments are visited in the same order.
type RandomWalk struct {
	mu   sync.Mutex
	rng  *rand.Rand
	step float64
}

// NewRandomWalk creates a seeded random walk. step <= 0 selects DefaultStep.
func NewRandomWalk(seed uint64, step float64) *RandomWalk {
	if step <= 0 {
		step = DefaultStep
	}
	return &RandomWalk{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		step: step,
	}
}

// Delta returns (u - 0.5) * step with u uniform in [0, 1).
func (w *RandomWalk) Delta(string, int64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return (w.rng.Float64() - 0.5) * w.step
}
