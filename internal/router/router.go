// Package router fans simulator output out to its consumers.
//
// The engine and the aggregate store publish into the Router from the tick
// path. The Router never blocks them: every consumer reads from its own
// GrowableBuffer on its own goroutine. Store mutations go to the journal
// buffer (consumed by the journal writer); price and aggregate events go to
// every subscriber buffer (websocket hub, Kafka publisher).
package router

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// Stats contains runtime statistics.
type Stats struct {
	JournalOps      int64
	EventsPublished int64
	Subscribers     int
	JournalBuffer   BufferStats
}

// Subscription is a named consumer of live events.
type Subscription struct {
	Name   string
	Events *GrowableBuffer[Event]
}

// Router implements store.Journal and engine.SampleObserver.
type Router struct {
	cfg    Config
	logger *slog.Logger

	journal *GrowableBuffer[JournalOp]

	mu          sync.RWMutex
	subscribers map[string]*Subscription
	closed      bool

	lastTick   atomic.Int64
	journalOps atomic.Int64
	published  atomic.Int64
}

// New creates a Router.
func New(cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		cfg:         cfg,
		logger:      logger,
		journal:     NewGrowableBuffer[JournalOp](cfg.JournalBufferSize),
		subscribers: make(map[string]*Subscription),
	}
}

// Journal returns the buffer of pending durable-log operations.
func (r *Router) Journal() *GrowableBuffer[JournalOp] {
	return r.journal
}

// Append queues a new aggregate record for the durable log and publishes it
// to subscribers.
func (r *Router) Append(ticker string, rec model.AggregateRecord) {
	if !r.cfg.DiscardJournal && r.journal.Send(JournalOp{Kind: OpAppend, Ticker: ticker, Record: rec}) {
		r.journalOps.Add(1)
	}
	r.publish(Event{
		Type:   EventAggregate,
		Ticker: ticker,
		Tick:   r.lastTick.Load(),
		Record: rec,
	})
}

// Trim queues a retention trim for the durable log.
func (r *Router) Trim(ticker string, g model.Granularity, keep int) {
	if !r.cfg.DiscardJournal && r.journal.Send(JournalOp{Kind: OpTrim, Ticker: ticker, Granularity: g, Keep: keep}) {
		r.journalOps.Add(1)
	}
}

// ObserveSample publishes a new price sample to subscribers.
func (r *Router) ObserveSample(ticker string, sample model.PriceSample) {
	r.lastTick.Store(sample.Timestamp)
	r.publish(Event{
		Type:   EventPrice,
		Ticker: ticker,
		Tick:   sample.Timestamp,
		Price:  sample.Price,
	})
}

// Subscribe registers a consumer. Subscribing twice with the same name
// returns the existing subscription. Returns nil after Close.
func (r *Router) Subscribe(name string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if sub, ok := r.subscribers[name]; ok {
		return sub
	}

	sub := &Subscription{
		Name:   name,
		Events: NewBoundedBuffer[Event](r.cfg.SubscriberBufferSize, r.cfg.SubscriberBufferMax),
	}
	r.subscribers[name] = sub
	r.logger.Debug("subscriber added", "subscriber", name)
	return sub
}

// Unsubscribe removes a consumer and closes its buffer.
func (r *Router) Unsubscribe(name string) {
	r.mu.Lock()
	sub, ok := r.subscribers[name]
	delete(r.subscribers, name)
	r.mu.Unlock()

	if ok {
		sub.Events.Close()
		r.logger.Debug("subscriber removed", "subscriber", name)
	}
}

// Close closes the journal and every subscriber buffer. Consumers drain
// what is queued and then stop.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := r.subscribers
	r.subscribers = make(map[string]*Subscription)
	r.mu.Unlock()

	r.journal.Close()
	for _, sub := range subs {
		sub.Events.Close()
	}

	r.logger.Info("router closed",
		"journal_ops", r.journalOps.Load(),
		"events_published", r.published.Load(),
	)
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	n := len(r.subscribers)
	r.mu.RUnlock()

	return Stats{
		JournalOps:      r.journalOps.Load(),
		EventsPublished: r.published.Load(),
		Subscribers:     n,
		JournalBuffer:   r.journal.Stats(),
	}
}

func (r *Router) publish(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subscribers {
		sub.Events.Send(ev)
	}
	r.published.Add(1)
}
