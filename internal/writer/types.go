package writer

import (
	"context"
	"errors"
	"time"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// ErrInvalidTicker is returned for tickers that cannot name a log partition.
var ErrInvalidTicker = errors.New("invalid ticker")

// Sink is a durable aggregate log.
//
//go:generate mockgen -source types.go -destination=mock/sink_mock.go -package=writer_mock
type Sink interface {
	// Append writes records of one ticker in order.
	Append(ctx context.Context, ticker string, recs []model.AggregateRecord) error

	// Trim discards all but the newest keep records of (ticker, g).
	Trim(ctx context.Context, ticker string, g model.Granularity, keep int) error

	// Load returns every persisted record of ticker, oldest first within
	// each granularity. A ticker with no log yields no records.
	Load(ctx context.Context, ticker string) ([]model.AggregateRecord, error)

	// Close releases resources held by the sink.
	Close() error
}

// Config contains configuration for the JournalWriter.
type Config struct {
	// BatchSize is the maximum number of queued operations handled per pass.
	BatchSize int

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int

	// RetryBackoff is the delay before the first retry; it doubles per retry.
	RetryBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// OpTimeout bounds a single sink call.
	OpTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		MaxBackoff:   5 * time.Second,
		OpTimeout:    5 * time.Second,
	}
}

// Metrics holds counters for a JournalWriter.
type Metrics struct {
	Appended int64 // Records written
	Trims    int64 // Trims applied
	Retries  int64
	Errors   int64 // Failed attempts
	Dropped  int64 // Operations abandoned after all retries
	Batches  int64
}
