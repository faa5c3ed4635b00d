package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/market"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/rollup"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/store"
)

func testRegistry(t *testing.T) *market.Registry {
	t.Helper()
	reg, err := market.NewRegistry([]model.Instrument{
		{Ticker: "NOVO", Group: "C25", Nationality: "Denmark", BasePrice: 750},
		{Ticker: "AAPL", Group: "S&P500", Nationality: "USA", BasePrice: 150},
	}, 120)
	require.NoError(t, err)
	return reg
}

// constant moves every price by step on every tick.
func constant(step float64) PriceSource {
	return PriceSourceFunc(func(string, int64) float64 { return step })
}

type recordingObserver struct {
	samples map[string][]model.PriceSample
}

func (o *recordingObserver) ObserveSample(ticker string, s model.PriceSample) {
	if o.samples == nil {
		o.samples = make(map[string][]model.PriceSample)
	}
	o.samples[ticker] = append(o.samples[ticker], s)
}

func newEngine(t *testing.T, src PriceSource, retention int) (*Engine, *store.Store, *recordingObserver) {
	t.Helper()
	st := store.New(retention, nil)
	obs := &recordingObserver{}
	return New(DefaultConfig(), testRegistry(t), st, src, obs, nil), st, obs
}

func run(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Tick()
	}
}

func TestTick_NoMinuteRecordBefore60(t *testing.T) {
	e, st, obs := newEngine(t, constant(0.01), 0)

	run(e, 59)
	assert.Equal(t, int64(59), e.CurrentTick())
	assert.Zero(t, st.Len("AAPL", model.Minute))
	assert.Len(t, obs.samples["AAPL"], 59)

	res := e.Tick()
	assert.Equal(t, int64(60), res.Tick)
	assert.Len(t, res.Samples, 2)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "NOVO", res.Records[0].Ticker)
	assert.Equal(t, "AAPL", res.Records[1].Ticker)

	assert.Equal(t, 1, st.Len("AAPL", model.Minute))
	assert.Equal(t, 1, st.Len("NOVO", model.Minute))
	assert.Zero(t, st.Len("AAPL", model.FifteenMinutes))
}

func TestTick_MinuteRecordMatchesSamples(t *testing.T) {
	e, st, obs := newEngine(t, NewRandomWalk(7, 0), 0)

	run(e, 60)

	samples := obs.samples["AAPL"]
	require.Len(t, samples, 60)

	var sum float64
	maxP, minP := samples[0].Price, samples[0].Price
	for i, s := range samples {
		assert.Equal(t, int64(i+1), s.Timestamp)
		sum += s.Price
		maxP = max(maxP, s.Price)
		minP = min(minP, s.Price)
	}

	recs := st.LastN("AAPL", model.Minute, 10)
	require.Len(t, recs, 1)
	assert.InDelta(t, sum/60, recs[0].Average, 1e-9)
	assert.Equal(t, maxP, recs[0].Max)
	assert.Equal(t, minP, recs[0].Min)
	assert.InDelta(t, 150, recs[0].Average, 3, "walk stays near the base price")
}

func TestTick_SameSeedSameRecords(t *testing.T) {
	a, stA, obsA := newEngine(t, NewRandomWalk(42, 0), 0)
	b, stB, obsB := newEngine(t, NewRandomWalk(42, 0), 0)

	run(a, 1800)
	run(b, 1800)

	assert.Equal(t, obsA.samples, obsB.samples)
	for _, ticker := range []string{"NOVO", "AAPL"} {
		minutesA := stA.LastN(ticker, model.Minute, 100)
		require.Len(t, minutesA, 30, ticker)
		assert.Equal(t, minutesA, stB.LastN(ticker, model.Minute, 100), ticker)

		fifteenA := stA.LastN(ticker, model.FifteenMinutes, 10)
		require.Len(t, fifteenA, 2, ticker)
		assert.Equal(t, fifteenA, stB.LastN(ticker, model.FifteenMinutes, 10), ticker)
	}
}

func TestTick_DeltaWithinStep(t *testing.T) {
	e, _, obs := newEngine(t, NewRandomWalk(1, 0), 0)
	run(e, 500)

	prev := 750.0
	for _, s := range obs.samples["NOVO"] {
		assert.InDelta(t, 0, s.Price-prev, DefaultStep/2+1e-9)
		prev = s.Price
	}
}

func TestTick_FifteenMinuteRollup(t *testing.T) {
	e, st, _ := newEngine(t, constant(0.01), 0)

	run(e, 900)

	minutes := st.LastN("NOVO", model.Minute, 100)
	require.Len(t, minutes, 15)

	fifteen := st.LastN("NOVO", model.FifteenMinutes, 10)
	require.Len(t, fifteen, 1)

	want := rollup.Rollup(minutes, rollup.ExtremesAverages)
	assert.InDelta(t, want.Average, fifteen[0].Average, 1e-9)
	assert.Equal(t, minutes[14].Average, fifteen[0].Max)
	assert.Equal(t, minutes[0].Average, fifteen[0].Min)
	assert.Equal(t, int64(1), fifteen[0].Seq)
}

func TestTick_HierarchicalExtremes(t *testing.T) {
	st := store.New(0, nil)
	cfg := DefaultConfig()
	cfg.Extremes = rollup.ExtremesHierarchical
	e := New(cfg, testRegistry(t), st, constant(0.01), nil, nil)

	run(e, 900)

	minutes := st.LastN("AAPL", model.Minute, 15)
	fifteen := st.LastN("AAPL", model.FifteenMinutes, 1)
	require.Len(t, fifteen, 1)
	assert.Equal(t, minutes[14].Max, fifteen[0].Max)
	assert.Equal(t, minutes[0].Min, fifteen[0].Min)
}

func TestTick_DayTrimsEveryPartition(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates a full day")
	}
	e, st, _ := newEngine(t, constant(0), 2)

	run(e, 86399)
	assert.Equal(t, 1439, st.Len("AAPL", model.Minute))

	res := e.Tick()
	assert.Equal(t, 2*((1440-2)+(96-2)+(24-2)), res.Trimmed)

	for _, g := range model.Granularities[:3] {
		assert.Equal(t, 2, st.Len("AAPL", g), g.String())
	}
	day := st.LastN("AAPL", model.Day, 5)
	require.Len(t, day, 1)
	assert.Equal(t, 150.0, day[0].Average)
}

func TestHistoricalData(t *testing.T) {
	e, _, _ := newEngine(t, constant(0.5), 0)
	run(e, 180)

	got, err := e.HistoricalData("AAPL", model.Minute, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Seq)
	assert.Equal(t, int64(3), got[1].Seq)

	got, err = e.HistoricalData("AAPL", model.Minute, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.HistoricalData("AAPL", model.Day, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHistoricalData_Errors(t *testing.T) {
	e, _, _ := newEngine(t, constant(0), 0)

	_, err := e.HistoricalData("UNKNOWN", model.Minute, 10)
	assert.ErrorIs(t, err, market.ErrNotFound)

	_, err = e.HistoricalData("AAPL", model.Minute, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.HistoricalData("AAPL", model.Granularity(9), 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, model.ErrUnknownGranularity)
}

func TestTickersByGroupAndQuote(t *testing.T) {
	e, _, _ := newEngine(t, constant(1), 0)

	tickers, err := e.TickersByGroup("C25")
	require.NoError(t, err)
	assert.Equal(t, []string{"NOVO"}, tickers)

	_, err = e.TickersByGroup("DAX")
	assert.ErrorIs(t, err, market.ErrNotFound)

	run(e, 3)
	price, tick, err := e.Quote("NOVO")
	require.NoError(t, err)
	assert.Equal(t, 753.0, price)
	assert.Equal(t, int64(3), tick)

	_, _, err = e.Quote("MSFT")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

type mapLoader map[string][]model.AggregateRecord

func (m mapLoader) Load(_ context.Context, ticker string) ([]model.AggregateRecord, error) {
	return m[ticker], nil
}

type failingLoader struct{}

func (failingLoader) Load(context.Context, string) ([]model.AggregateRecord, error) {
	return nil, errors.New("disk gone")
}

func TestRestore(t *testing.T) {
	e, st, _ := newEngine(t, constant(0), 0)

	n, err := e.Restore(context.Background(), mapLoader{
		"AAPL": {
			{Granularity: model.Minute, Average: 151, Max: 152, Min: 150, Seq: 4},
			{Granularity: model.Hour, Average: 149, Max: 149, Min: 149, Seq: 1},
			{Granularity: model.Minute, Average: 153, Max: 153, Min: 153, Seq: 5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, st.Len("AAPL", model.Minute))

	price, _, err := e.Quote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 153.0, price)

	price, _, err = e.Quote("NOVO")
	require.NoError(t, err)
	assert.Equal(t, 750.0, price)

	run(e, 60)
	recs := st.LastN("AAPL", model.Minute, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(6), recs[0].Seq)
	assert.Equal(t, 153.0, recs[0].Average)
}

func TestRestore_LoaderError(t *testing.T) {
	e, _, _ := newEngine(t, constant(0), 0)

	_, err := e.Restore(context.Background(), failingLoader{})
	assert.ErrorContains(t, err, "disk gone")
}

func TestStartStop(t *testing.T) {
	st := store.New(0, nil)
	cfg := DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	e := New(cfg, testRegistry(t), st, constant(0.01), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, e.Start(ctx))
	assert.Error(t, e.Start(ctx), "second start")

	assert.Eventually(t, func() bool { return e.CurrentTick() >= 3 }, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Stop(ctx))
	stopped := e.CurrentTick()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, e.CurrentTick())

	require.NoError(t, e.Stop(ctx), "stop is idempotent")
}
