package market

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/config"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/series"
)

var (
	// ErrNotFound is the class of every lookup failure.
	ErrNotFound = errors.New("not found")

	ErrTickerNotFound = fmt.Errorf("ticker %w", ErrNotFound)
	ErrGroupNotFound  = fmt.Errorf("group %w", ErrNotFound)

	ErrDuplicateTicker = errors.New("duplicate ticker")
	ErrEmptyTicker     = errors.New("empty ticker")
)

// Registry is the set of simulated instruments.
type Registry struct {
	instruments []model.Instrument // registration order
	states      map[string]*instrumentState
	groups      []model.Group
	groupIndex  map[string]int
}

// NewRegistry creates a registry from instruments in registration order.
// Groups are formed from Instrument.Group in first-seen order. maxSamples
// bounds each instrument's price history (0 = unbounded).
func NewRegistry(instruments []model.Instrument, maxSamples int) (*Registry, error) {
	r := &Registry{
		instruments: make([]model.Instrument, 0, len(instruments)),
		states:      make(map[string]*instrumentState, len(instruments)),
		groupIndex:  make(map[string]int),
	}

	for _, inst := range instruments {
		if inst.Ticker == "" {
			return nil, ErrEmptyTicker
		}
		if _, ok := r.states[inst.Ticker]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTicker, inst.Ticker)
		}

		r.instruments = append(r.instruments, inst)
		r.states[inst.Ticker] = newInstrumentState(inst.BasePrice, series.New(maxSamples))

		idx, ok := r.groupIndex[inst.Group]
		if !ok {
			idx = len(r.groups)
			r.groupIndex[inst.Group] = idx
			r.groups = append(r.groups, model.Group{Name: inst.Group})
		}
		r.groups[idx].Tickers = append(r.groups[idx].Tickers, inst.Ticker)
	}

	return r, nil
}

// FromConfig builds a registry from the configured groups.
func FromConfig(cfg config.RegistryConfig, maxSamples int) (*Registry, error) {
	var instruments []model.Instrument
	for _, g := range cfg.Groups {
		for _, inst := range g.Instruments {
			instruments = append(instruments, model.Instrument{
				Ticker:      inst.Ticker,
				Group:       g.Name,
				Nationality: inst.Nationality,
				BasePrice:   inst.BasePrice,
			})
		}
	}
	return NewRegistry(instruments, maxSamples)
}

// Lookup returns the instrument for ticker.
func (r *Registry) Lookup(ticker string) (model.Instrument, error) {
	for _, inst := range r.instruments {
		if inst.Ticker == ticker {
			return inst, nil
		}
	}
	return model.Instrument{}, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
}

// Has reports whether ticker is registered.
func (r *Registry) Has(ticker string) bool {
	_, ok := r.states[ticker]
	return ok
}

// Instruments returns every instrument in registration order.
func (r *Registry) Instruments() []model.Instrument {
	return slices.Clone(r.instruments)
}

// Tickers returns every ticker in registration order.
func (r *Registry) Tickers() []string {
	out := make([]string, len(r.instruments))
	for i, inst := range r.instruments {
		out[i] = inst.Ticker
	}
	return out
}

// TickersByGroup returns the tickers of group name in registration order.
func (r *Registry) TickersByGroup(name string) ([]string, error) {
	idx, ok := r.groupIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	return slices.Clone(r.groups[idx].Tickers), nil
}

// Groups returns every group in first-seen order.
func (r *Registry) Groups() []model.Group {
	out := make([]model.Group, len(r.groups))
	for i, g := range r.groups {
		out[i] = model.Group{Name: g.Name, Tickers: slices.Clone(g.Tickers)}
	}
	return out
}

// Nationalities maps each known ticker in tickers to its nationality.
// Unknown tickers are omitted.
func (r *Registry) Nationalities(tickers []string) map[string]string {
	out := make(map[string]string, len(tickers))
	for _, t := range tickers {
		if inst, err := r.Lookup(t); err == nil {
			out[t] = inst.Nationality
		}
	}
	return out
}

// Search returns the tickers containing query, case-insensitively, sorted.
// An empty query matches nothing.
func (r *Registry) Search(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []string{}
	if q == "" {
		return out
	}
	for _, inst := range r.instruments {
		if strings.Contains(strings.ToLower(inst.Ticker), q) {
			out = append(out, inst.Ticker)
		}
	}
	slices.Sort(out)
	return out
}

// CurrentPrice returns the latest simulated price of ticker.
func (r *Registry) CurrentPrice(ticker string) (float64, error) {
	st, err := r.state(ticker)
	if err != nil {
		return 0, err
	}
	return st.currentPrice(), nil
}

// Series returns the price history of ticker.
func (r *Registry) Series(ticker string) (*series.Series, error) {
	st, err := r.state(ticker)
	if err != nil {
		return nil, err
	}
	return st.series, nil
}

// Advance applies delta to the current price of ticker and records the
// resulting sample at tick.
func (r *Registry) Advance(ticker string, delta float64, tick int64) (model.PriceSample, error) {
	st, err := r.state(ticker)
	if err != nil {
		return model.PriceSample{}, err
	}
	return st.advance(delta, tick), nil
}

// SetPrice overrides the current price of ticker without recording a
// sample. Used when resuming from the durable log.
func (r *Registry) SetPrice(ticker string, price float64) error {
	st, err := r.state(ticker)
	if err != nil {
		return err
	}
	st.setPrice(price)
	return nil
}

func (r *Registry) state(ticker string) (*instrumentState, error) {
	st, ok := r.states[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
	}
	return st, nil
}
