package writer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/metrics"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
)

// JournalWriter consumes journal operations from the router buffer and
// applies them to a Sink in queue order.
type JournalWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input from the router
	input *router.GrowableBuffer[router.JournalOp]

	sink Sink

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	mu      sync.Mutex
	metrics Metrics

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewJournalWriter creates a JournalWriter.
func NewJournalWriter(
	cfg Config,
	input *router.GrowableBuffer[router.JournalOp],
	sink Sink,
	logger *slog.Logger,
) *JournalWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &JournalWriter{
		cfg:    cfg,
		input:  input,
		sink:   sink,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Start begins consuming operations.
func (w *JournalWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"max_retries", w.cfg.MaxRetries,
		"retry_backoff", w.cfg.RetryBackoff,
	)
	return nil
}

// Stop closes the input buffer and waits for queued operations to be
// written. If ctx expires first, in-flight retries are abandoned.
func (w *JournalWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer", "pending", w.input.Len())

	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out", "pending", w.input.Len())
		if w.cancel != nil {
			w.cancel()
		}
		<-done
	}

	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// Stats returns current metrics.
func (w *JournalWriter) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// consumeLoop blocks on the input buffer until it is closed and drained.
func (w *JournalWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		op, ok := w.input.Receive()
		if !ok {
			return
		}

		batch := []router.JournalOp{op}
		if n := w.cfg.BatchSize - 1; n > 0 {
			batch = append(batch, w.input.DrainTo(n)...)
		}
		w.process(batch)
	}
}

// process applies a batch. Consecutive appends of the same ticker are
// written with one sink call.
func (w *JournalWriter) process(batch []router.JournalOp) {
	w.mu.Lock()
	w.metrics.Batches++
	w.mu.Unlock()

	for i := 0; i < len(batch); {
		op := batch[i]

		if op.Kind == router.OpTrim {
			w.applyTrim(op)
			i++
			continue
		}

		j := i + 1
		for j < len(batch) && batch[j].Kind == router.OpAppend && batch[j].Ticker == op.Ticker {
			j++
		}
		recs := make([]model.AggregateRecord, 0, j-i)
		for _, o := range batch[i:j] {
			recs = append(recs, o.Record)
		}
		w.applyAppend(op.Ticker, recs)
		i = j
	}
}

func (w *JournalWriter) applyAppend(ticker string, recs []model.AggregateRecord) {
	err := w.withRetry("append", ticker, func(ctx context.Context) error {
		return w.sink.Append(ctx, ticker, recs)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.metrics.Dropped += int64(len(recs))
		metrics.JournalOpsTotal.WithLabelValues("append", "dropped").Add(float64(len(recs)))
		w.logger.Error("dropped aggregate records",
			"ticker", ticker,
			"count", len(recs),
			"first_seq", recs[0].Seq,
			"error", err,
		)
		return
	}
	w.metrics.Appended += int64(len(recs))
	metrics.JournalOpsTotal.WithLabelValues("append", "ok").Add(float64(len(recs)))
}

func (w *JournalWriter) applyTrim(op router.JournalOp) {
	err := w.withRetry("trim", op.Ticker, func(ctx context.Context) error {
		return w.sink.Trim(ctx, op.Ticker, op.Granularity, op.Keep)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.metrics.Dropped++
		metrics.JournalOpsTotal.WithLabelValues("trim", "dropped").Inc()
		w.logger.Error("dropped trim",
			"ticker", op.Ticker,
			"granularity", op.Granularity.String(),
			"keep", op.Keep,
			"error", err,
		)
		return
	}
	w.metrics.Trims++
	metrics.JournalOpsTotal.WithLabelValues("trim", "ok").Inc()
}

// withRetry runs fn with exponential backoff and jitter.
func (w *JournalWriter) withRetry(kind, ticker string, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := w.cfg.RetryBackoff

	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := jitter(backoff)
			w.logger.Debug("retrying journal write",
				"kind", kind,
				"ticker", ticker,
				"attempt", attempt,
				"backoff", delay,
			)

			w.mu.Lock()
			w.metrics.Retries++
			w.mu.Unlock()
			metrics.JournalRetries.Inc()

			if err := w.sleep(w.ctx, delay); err != nil {
				return err
			}

			backoff *= 2
			if w.cfg.MaxBackoff > 0 && backoff > w.cfg.MaxBackoff {
				backoff = w.cfg.MaxBackoff
			}
		}

		err := w.call(fn)
		if err == nil {
			return nil
		}
		lastErr = err

		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		w.logger.Warn("journal write failed", "kind", kind, "ticker", ticker, "attempt", attempt, "error", err)
	}

	return lastErr
}

func (w *JournalWriter) call(fn func(ctx context.Context) error) error {
	ctx := w.ctx
	if w.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.OpTimeout)
		defer cancel()
	}
	return fn(ctx)
}

// jitter returns d scaled by a random factor in [0.5, 1.5).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
