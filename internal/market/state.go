package market

import (
	"sync"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/series"
)

// instrumentState is the mutable part of an instrument.
type instrumentState struct {
	mu     sync.RWMutex
	price  float64
	series *series.Series
}

func newInstrumentState(basePrice float64, s *series.Series) *instrumentState {
	return &instrumentState{price: basePrice, series: s}
}

func (s *instrumentState) currentPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

func (s *instrumentState) setPrice(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
}

// advance moves the price and appends the sample while holding the lock so
// the series and the current price never disagree.
func (s *instrumentState) advance(delta float64, tick int64) model.PriceSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.price += delta
	sample := model.PriceSample{Timestamp: tick, Price: s.price}
	s.series.Append(sample)
	return sample
}
