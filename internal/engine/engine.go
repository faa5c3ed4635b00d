package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/market"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/metrics"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/rollup"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/store"
)

// ErrInvalidArgument marks caller errors in query parameters.
var ErrInvalidArgument = errors.New("invalid argument")

// SampleObserver is notified of every new price sample.
type SampleObserver interface {
	ObserveSample(ticker string, sample model.PriceSample)
}

// Config holds engine configuration.
type Config struct {
	TickInterval time.Duration   // Wall-clock time per tick (default: 1s)
	Extremes     rollup.Extremes // Max/min derivation for coarse records
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		Extremes:     rollup.ExtremesAverages,
	}
}

// TickSample is one price sample produced by a tick.
type TickSample struct {
	Ticker string
	Sample model.PriceSample
}

// TickRecord is one aggregate record produced by a tick.
type TickRecord struct {
	Ticker string
	Record model.AggregateRecord
}

// TickResult describes everything one tick produced.
type TickResult struct {
	Tick    int64
	Samples []TickSample
	Records []TickRecord
	Trimmed int
}

// Engine owns the tick counter and the timer driving it.
type Engine struct {
	cfg      Config
	registry *market.Registry
	store    *store.Store
	source   PriceSource
	observer SampleObserver
	logger   *slog.Logger

	tickMu sync.Mutex // serializes Tick
	tick   atomic.Int64

	mu        sync.Mutex // guards scheduler
	scheduler *gocron.Scheduler
}

// New creates an Engine. observer may be nil.
func New(
	cfg Config,
	registry *market.Registry,
	st *store.Store,
	source PriceSource,
	observer SampleObserver,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Extremes == "" {
		cfg.Extremes = rollup.ExtremesAverages
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		store:    st,
		source:   source,
		observer: observer,
		logger:   logger,
	}
}

// Start begins ticking every TickInterval.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scheduler != nil {
		return errors.New("engine already started")
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(e.cfg.TickInterval).WaitForSchedule().Do(e.runTick); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	s.StartAsync()
	e.scheduler = s

	e.logger.Info("simulation engine started",
		"tick_interval", e.cfg.TickInterval,
		"instruments", len(e.registry.Tickers()),
		"extremes", string(e.cfg.Extremes),
		"start_tick", e.tick.Load(),
	)
	return nil
}

// Stop halts the timer and waits for an in-flight tick to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	s := e.scheduler
	e.scheduler = nil
	e.mu.Unlock()

	if s == nil {
		return nil
	}
	s.Stop()

	done := make(chan struct{})
	go func() {
		e.tickMu.Lock()
		e.tickMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("simulation engine stopped", "tick", e.tick.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentTick returns the number of the last completed tick.
func (e *Engine) CurrentTick() int64 {
	return e.tick.Load()
}

// Tick advances the simulation by one tick.
func (e *Engine) Tick() TickResult {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	t := e.tick.Load() + 1
	tickers := e.registry.Tickers()

	res := TickResult{
		Tick:    t,
		Samples: make([]TickSample, 0, len(tickers)),
	}

	for _, ticker := range tickers {
		delta := e.source.Delta(ticker, t)
		sample, err := e.registry.Advance(ticker, delta, t)
		if err != nil {
			// Tickers come from the registry itself.
			e.logger.Error("advance price", "ticker", ticker, "error", err)
			continue
		}
		res.Samples = append(res.Samples, TickSample{Ticker: ticker, Sample: sample})
		if e.observer != nil {
			e.observer.ObserveSample(ticker, sample)
		}
	}

	due := rollup.Due(t)
	for _, g := range due {
		for _, ticker := range tickers {
			rec := e.store.Append(ticker, g, e.window(ticker, g))
			res.Records = append(res.Records, TickRecord{Ticker: ticker, Record: rec})
		}
		metrics.RollupsTotal.WithLabelValues(g.String()).Add(float64(len(tickers)))
	}

	if slices.Contains(due, model.Day) {
		res.Trimmed = e.store.TrimAll()
		metrics.RecordsTrimmed.Add(float64(res.Trimmed))
	}

	// Publish the counter last so readers never see a tick half applied.
	e.tick.Store(t)

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	return res
}

// window computes the aggregate of g for ticker from its window source.
func (e *Engine) window(ticker string, g model.Granularity) rollup.Stats {
	finer, ok := g.Finer()
	if !ok {
		ser, err := e.registry.Series(ticker)
		if err != nil {
			return rollup.Stats{}
		}
		return rollup.Aggregate(ser.LastPrices(g.WindowSize()))
	}
	return rollup.Rollup(e.store.LastN(ticker, finer, g.WindowSize()), e.cfg.Extremes)
}

// runTick is the scheduled job.
func (e *Engine) runTick() {
	res := e.Tick()

	if len(res.Records) == 0 {
		return
	}
	e.logger.Debug("rollups produced",
		"tick", res.Tick,
		"records", len(res.Records),
		"trimmed", res.Trimmed,
	)
	if res.Trimmed > 0 {
		e.logger.Info("retention applied", "tick", res.Tick, "trimmed", res.Trimmed)
	}
}

// HistoricalData returns up to count of the most recent records of ticker
// at granularity g, oldest first.
func (e *Engine) HistoricalData(ticker string, g model.Granularity, count int) ([]model.AggregateRecord, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count must be >= 0, got %d", ErrInvalidArgument, count)
	}
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, model.ErrUnknownGranularity)
	}
	if !e.registry.Has(ticker) {
		return nil, fmt.Errorf("%w: %s", market.ErrTickerNotFound, ticker)
	}
	return e.store.LastN(ticker, g, count), nil
}

// TickersByGroup returns the tickers of a group.
func (e *Engine) TickersByGroup(name string) ([]string, error) {
	return e.registry.TickersByGroup(name)
}

// Quote returns the current price of ticker and the tick it was set on.
func (e *Engine) Quote(ticker string) (float64, int64, error) {
	price, err := e.registry.CurrentPrice(ticker)
	if err != nil {
		return 0, 0, err
	}
	return price, e.tick.Load(), nil
}

// Registry returns the instrument registry.
func (e *Engine) Registry() *market.Registry {
	return e.registry
}

// Loader reads persisted records of one ticker.
type Loader interface {
	Load(ctx context.Context, ticker string) ([]model.AggregateRecord, error)
}

// Restore reloads persisted records into the store and resumes each price
// from its latest MINUTE average. It must run before Start.
func (e *Engine) Restore(ctx context.Context, loader Loader) (int, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	total := 0
	for _, ticker := range e.registry.Tickers() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		recs, err := loader.Load(ctx, ticker)
		if err != nil {
			return total, fmt.Errorf("load %s: %w", ticker, err)
		}
		if len(recs) == 0 {
			continue
		}
		e.store.Restore(ticker, recs)
		total += len(recs)

		if last := e.store.LastN(ticker, model.Minute, 1); len(last) == 1 {
			if err := e.registry.SetPrice(ticker, last[0].Average); err != nil {
				return total, err
			}
		}
		e.logger.Debug("restored ticker", "ticker", ticker, "records", len(recs))
	}

	if total > 0 {
		e.logger.Info("restored aggregate history", "records", total)
	}
	return total, nil
}
