package router

import (
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// Config holds configuration for the Router.
type Config struct {
	JournalBufferSize    int  // Initial journal buffer capacity. Default: 1024
	SubscriberBufferSize int  // Initial per-subscriber capacity. Default: 256
	SubscriberBufferMax  int  // Per-subscriber cap before oldest events are dropped. Default: 8192
	DiscardJournal       bool // Drop durable-log ops; used when nothing persists them
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		JournalBufferSize:    1024,
		SubscriberBufferSize: 256,
		SubscriberBufferMax:  8192,
	}
}

// OpKind is the kind of a journal operation.
type OpKind int

const (
	OpAppend OpKind = iota
	OpTrim
)

// String returns the log name of the kind.
func (k OpKind) String() string {
	switch k {
	case OpAppend:
		return "append"
	case OpTrim:
		return "trim"
	default:
		return "unknown"
	}
}

// JournalOp is one store mutation waiting to be written to the durable log.
type JournalOp struct {
	Kind   OpKind
	Ticker string

	// Append
	Record model.AggregateRecord

	// Trim
	Granularity model.Granularity
	Keep        int
}

// EventType distinguishes subscriber events.
type EventType string

const (
	EventPrice     EventType = "price"
	EventAggregate EventType = "aggregate"
)

// Event is a live update delivered to subscribers.
type Event struct {
	Type   EventType
	Ticker string
	Tick   int64

	// EventPrice
	Price float64

	// EventAggregate
	Record model.AggregateRecord
}
