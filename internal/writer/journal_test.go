package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
	writermock "github.com/VictorJustesen/Stocksimulatedapi/internal/writer/mock"
)

type journalFixture struct {
	ctrl   *gomock.Controller
	sink   *writermock.MockSink
	input  *router.GrowableBuffer[router.JournalOp]
	writer *JournalWriter
	sleeps []time.Duration
}

func setupJournal(t *testing.T, cfg Config) *journalFixture {
	ctrl := gomock.NewController(t)
	f := &journalFixture{
		ctrl:  ctrl,
		sink:  writermock.NewMockSink(ctrl),
		input: router.NewGrowableBuffer[router.JournalOp](16),
	}
	f.writer = NewJournalWriter(cfg, f.input, f.sink, nil)
	f.writer.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

// run queues ops, starts the writer and stops it once the queue is drained.
func (f *journalFixture) run(t *testing.T, ops ...router.JournalOp) {
	t.Helper()
	for _, op := range ops {
		require.True(t, f.input.Send(op))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, f.writer.Start(ctx))
	require.NoError(t, f.writer.Stop(ctx))
}

func appendOp(ticker string, seq int64) router.JournalOp {
	return router.JournalOp{
		Kind:   router.OpAppend,
		Ticker: ticker,
		Record: model.AggregateRecord{Granularity: model.Minute, Average: float64(seq), Seq: seq},
	}
}

func TestJournalWriter_AppliesOpsInOrder(t *testing.T) {
	f := setupJournal(t, DefaultConfig())

	gomock.InOrder(
		f.sink.EXPECT().Append(gomock.Any(), "AAPL", []model.AggregateRecord{
			appendOp("AAPL", 1).Record,
			appendOp("AAPL", 2).Record,
		}).Return(nil),
		f.sink.EXPECT().Trim(gomock.Any(), "AAPL", model.Minute, 300).Return(nil),
		f.sink.EXPECT().Append(gomock.Any(), "AAPL", []model.AggregateRecord{appendOp("AAPL", 3).Record}).Return(nil),
		f.sink.EXPECT().Append(gomock.Any(), "NOVO", []model.AggregateRecord{appendOp("NOVO", 1).Record}).Return(nil),
	)

	f.run(t,
		appendOp("AAPL", 1),
		appendOp("AAPL", 2),
		router.JournalOp{Kind: router.OpTrim, Ticker: "AAPL", Granularity: model.Minute, Keep: 300},
		appendOp("AAPL", 3),
		appendOp("NOVO", 1),
	)

	stats := f.writer.Stats()
	assert.Equal(t, int64(4), stats.Appended)
	assert.Equal(t, int64(1), stats.Trims)
	assert.Zero(t, stats.Dropped)
	assert.Empty(t, f.sleeps)
}

func TestJournalWriter_RetriesThenSucceeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.RetryBackoff = 100 * time.Millisecond
	f := setupJournal(t, cfg)

	errDisk := errors.New("disk full")
	gomock.InOrder(
		f.sink.EXPECT().Append(gomock.Any(), "AAPL", gomock.Any()).Return(errDisk).Times(2),
		f.sink.EXPECT().Append(gomock.Any(), "AAPL", gomock.Any()).Return(nil),
	)

	f.run(t, appendOp("AAPL", 1))

	stats := f.writer.Stats()
	assert.Equal(t, int64(1), stats.Appended)
	assert.Equal(t, int64(2), stats.Retries)
	assert.Equal(t, int64(2), stats.Errors)
	assert.Zero(t, stats.Dropped)

	require.Len(t, f.sleeps, 2)
	assert.GreaterOrEqual(t, f.sleeps[0], 50*time.Millisecond)
	assert.Less(t, f.sleeps[0], 150*time.Millisecond)
	assert.GreaterOrEqual(t, f.sleeps[1], 100*time.Millisecond, "backoff doubles")
}

func TestJournalWriter_DropsAfterRetriesAndContinues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	f := setupJournal(t, cfg)

	errDown := errors.New("connection refused")
	gomock.InOrder(
		f.sink.EXPECT().Append(gomock.Any(), "AAPL", gomock.Any()).Return(errDown).Times(3),
		f.sink.EXPECT().Trim(gomock.Any(), "AAPL", model.Day, 300).Return(nil),
	)

	f.run(t,
		appendOp("AAPL", 1),
		router.JournalOp{Kind: router.OpTrim, Ticker: "AAPL", Granularity: model.Day, Keep: 300},
	)

	stats := f.writer.Stats()
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(1), stats.Trims)
	assert.Zero(t, stats.Appended)
}

func TestJournalWriter_BackoffIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 6
	cfg.RetryBackoff = time.Second
	cfg.MaxBackoff = 2 * time.Second
	f := setupJournal(t, cfg)

	f.sink.EXPECT().Trim(gomock.Any(), "NOVO", model.Hour, 1).Return(errors.New("locked")).Times(7)

	f.run(t, router.JournalOp{Kind: router.OpTrim, Ticker: "NOVO", Granularity: model.Hour, Keep: 1})

	require.Len(t, f.sleeps, 6)
	for _, d := range f.sleeps {
		assert.Less(t, d, 3*time.Second)
	}
	assert.Equal(t, int64(1), f.writer.Stats().Dropped)
}

func TestJournalWriter_BatchSizeBoundsCoalescing(t *testing.T) {
	t.Run("two", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BatchSize = 2
		f := setupJournal(t, cfg)

		f.sink.EXPECT().Append(gomock.Any(), "AAPL", gomock.Len(2)).Return(nil).Times(2)
		f.sink.EXPECT().Append(gomock.Any(), "AAPL", gomock.Len(1)).Return(nil)

		f.run(t,
			appendOp("AAPL", 1),
			appendOp("AAPL", 2),
			appendOp("AAPL", 3),
			appendOp("AAPL", 4),
			appendOp("AAPL", 5),
		)

		assert.Equal(t, int64(3), f.writer.Stats().Batches)
	})

	t.Run("one", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BatchSize = 1
		f := setupJournal(t, cfg)

		f.sink.EXPECT().Append(gomock.Any(), "AAPL", gomock.Len(1)).Return(nil).Times(4)

		f.run(t,
			appendOp("AAPL", 1),
			appendOp("AAPL", 2),
			appendOp("AAPL", 3),
			appendOp("AAPL", 4),
		)

		stats := f.writer.Stats()
		assert.Equal(t, int64(4), stats.Batches)
		assert.Equal(t, int64(4), stats.Appended)
	})
}

func TestJitter(t *testing.T) {
	assert.Zero(t, jitter(0))
	for i := 0; i < 100; i++ {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}
