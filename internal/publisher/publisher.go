// Package publisher forwards aggregate records to Kafka as JSON events,
// keyed by ticker so each instrument's records stay ordered within a
// partition.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/metrics"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
)

const subscriberName = "kafka-publisher"

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventSource is the router side the publisher consumes.
type EventSource interface {
	Subscribe(name string) *router.Subscription
	Unsubscribe(name string)
}

// Config holds publisher configuration.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int           // Max events per WriteMessages call. Default: 100
	BatchTimeout time.Duration // kafka.Writer flush interval. Default: 100ms
	WriteTimeout time.Duration // Per-batch deadline. Default: 10s
	InstanceID   string        // Added to every event
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Topic:        "stock-aggregates",
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// AggregateEvent is the JSON value of each Kafka message.
type AggregateEvent struct {
	Ticker      string  `json:"ticker"`
	Granularity string  `json:"granularity"`
	Average     float64 `json:"average"`
	Max         float64 `json:"max"`
	Min         float64 `json:"min"`
	Seq         int64   `json:"seq"`
	Tick        int64   `json:"tick"`
	InstanceID  string  `json:"instance_id,omitempty"`
}

// Stats contains runtime statistics.
type Stats struct {
	Published int64
	Failed    int64
	Batches   int64
}

// Publisher consumes aggregate events and writes them to Kafka.
type Publisher struct {
	cfg    Config
	source EventSource
	writer MessageWriter
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// NewKafkaWriter builds the kafka-go writer for cfg.
func NewKafkaWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// New creates a Publisher writing through w.
func New(cfg Config, source EventSource, w MessageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Publisher{
		cfg:    cfg,
		source: source,
		writer: w,
		logger: logger,
	}
}

// Start subscribes to the event source and begins publishing.
func (p *Publisher) Start(ctx context.Context) error {
	sub := p.source.Subscribe(subscriberName)
	if sub == nil {
		return fmt.Errorf("subscribe %s: router closed", subscriberName)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.publishLoop(sub.Events)

	p.logger.Info("kafka publisher started",
		"brokers", p.cfg.Brokers,
		"topic", p.cfg.Topic,
		"batch_size", p.cfg.BatchSize,
	)
	return nil
}

// Stop drains queued events, then closes the writer.
func (p *Publisher) Stop(ctx context.Context) error {
	p.source.Unsubscribe(subscriberName)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("kafka publisher stop timed out")
		if p.cancel != nil {
			p.cancel()
		}
		<-done
	}
	if p.cancel != nil {
		p.cancel()
	}

	stats := p.Stats()
	p.logger.Info("kafka publisher stopped", "published", stats.Published, "failed", stats.Failed)
	return p.writer.Close()
}

// Stats returns current statistics.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Publisher) publishLoop(events *router.GrowableBuffer[router.Event]) {
	defer p.wg.Done()

	for {
		ev, ok := events.Receive()
		if !ok {
			return
		}
		batch := []router.Event{ev}
		if n := p.cfg.BatchSize - 1; n > 0 {
			batch = append(batch, events.DrainTo(n)...)
		}
		p.publish(batch)
	}
}

func (p *Publisher) publish(batch []router.Event) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		if ev.Type != router.EventAggregate {
			continue
		}
		msg, err := p.encode(ev)
		if err != nil {
			p.logger.Error("failed to encode aggregate event", "ticker", ev.Ticker, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.WriteTimeout)
	defer cancel()

	err := p.writer.WriteMessages(ctx, msgs...)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Batches++
	if err != nil {
		p.stats.Failed += int64(len(msgs))
		metrics.EventsPublished.WithLabelValues("kafka_failed").Add(float64(len(msgs)))
		p.logger.Error("failed to publish aggregate events",
			"topic", p.cfg.Topic,
			"count", len(msgs),
			"error", err,
		)
		return
	}
	p.stats.Published += int64(len(msgs))
	metrics.EventsPublished.WithLabelValues("kafka").Add(float64(len(msgs)))
}

func (p *Publisher) encode(ev router.Event) (kafka.Message, error) {
	value, err := json.Marshal(AggregateEvent{
		Ticker:      ev.Ticker,
		Granularity: ev.Record.Granularity.String(),
		Average:     ev.Record.Average,
		Max:         ev.Record.Max,
		Min:         ev.Record.Min,
		Seq:         ev.Record.Seq,
		Tick:        ev.Tick,
		InstanceID:  p.cfg.InstanceID,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.Ticker),
		Value: value,
		Headers: []kafka.Header{
			{Key: "granularity", Value: []byte(ev.Record.Granularity.String())},
		},
	}, nil
}
