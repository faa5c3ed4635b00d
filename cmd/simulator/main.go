package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/config"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/connection"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/database"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/engine"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/httpapi"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/logging"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/market"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/metrics"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/publisher"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/rollup"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/router"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/store"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/version"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/simulator.example.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	logger := log.Logger
	slog.SetDefault(logger)

	logger.Info("starting simulator",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	extremes, err := rollup.ParseExtremes(cfg.Rollup.Extremes)
	if err != nil {
		return err
	}

	registry, err := market.FromConfig(cfg.Registry, cfg.Simulation.MaxSamples)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	logger.Info("registry loaded",
		"groups", len(registry.Groups()),
		"instruments", len(registry.Tickers()),
	)

	// Open the durable log
	sink, pool, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	rtr := router.New(router.Config{
		JournalBufferSize:    cfg.Writers.BufferSize,
		SubscriberBufferSize: cfg.Stream.SubscriberBufferSize,
		SubscriberBufferMax:  cfg.Stream.SubscriberBufferMax,
		DiscardJournal:       sink == nil,
	}, logger)

	st := store.New(cfg.Rollup.Retention, rtr)
	source := engine.NewRandomWalk(seed(cfg.Simulation.Seed), cfg.Simulation.Step)
	eng := engine.New(engine.Config{
		TickInterval: cfg.Simulation.TickInterval,
		Extremes:     extremes,
	}, registry, st, source, rtr, logger)

	if sink != nil && !cfg.Storage.SkipRestore {
		n, err := eng.Restore(ctx, sink)
		if err != nil {
			return fmt.Errorf("restore history: %w", err)
		}
		logger.Info("history restored", "records", n)
	}

	// The journal writer outlives ctx so Stop can drain what is queued.
	var journal *writer.JournalWriter
	if sink != nil {
		journal = writer.NewJournalWriter(writer.Config{
			BatchSize:    cfg.Writers.BatchSize,
			MaxRetries:   cfg.Writers.MaxRetries,
			RetryBackoff: cfg.Writers.RetryBackoff,
			MaxBackoff:   cfg.Writers.MaxBackoff,
			OpTimeout:    cfg.Writers.OpTimeout,
		}, rtr.Journal(), sink, logger)
		if err := journal.Start(context.Background()); err != nil {
			return fmt.Errorf("start journal writer: %w", err)
		}
	}

	hub := connection.NewHub(connection.HubConfig{
		PingInterval: cfg.Stream.PingInterval,
		PongTimeout:  2 * cfg.Stream.PingInterval,
		WriteTimeout: cfg.Stream.WriteTimeout,
		SendBuffer:   cfg.Stream.SubscriberBufferSize,
	}, rtr, registry, logger)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start stream hub: %w", err)
	}

	var pub *publisher.Publisher
	if cfg.Kafka.Enabled {
		pcfg := publisher.DefaultConfig()
		pcfg.Brokers = cfg.Kafka.Brokers
		pcfg.Topic = cfg.Kafka.Topic
		pcfg.BatchTimeout = cfg.Kafka.BatchTimeout
		pcfg.InstanceID = cfg.Instance.ID

		pub = publisher.New(pcfg, rtr, publisher.NewKafkaWriter(pcfg), logger)
		if err := pub.Start(ctx); err != nil {
			return fmt.Errorf("start kafka publisher: %w", err)
		}
	}

	metricsSrv := metrics.Serve(fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path, logger)

	gin.SetMode(cfg.Server.Mode)
	server := httpapi.NewServer(cfg.Server, httpapi.NewRouter(httpapi.Deps{
		Simulator:  eng,
		Directory:  registry,
		Stream:     hub,
		StreamPath: cfg.Stream.Path,
		InstanceID: cfg.Instance.ID,
	}, logger), logger)
	serverErr := server.Start()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	logger.Info("simulator running",
		"addr", cfg.Server.Addr,
		"stream_path", cfg.Stream.Path,
		"tick_interval", cfg.Simulation.TickInterval,
		"storage", cfg.Storage.Backend,
		"kafka", cfg.Kafka.Enabled,
	)

	// Wait for shutdown
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop producing first, then drain consumers in order.
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine stop failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}
	if err := hub.Stop(shutdownCtx); err != nil {
		logger.Warn("stream hub stop failed", "error", err)
	}
	if pub != nil {
		if err := pub.Stop(shutdownCtx); err != nil {
			logger.Warn("kafka publisher stop failed", "error", err)
		}
	}
	rtr.Close()
	if journal != nil {
		if err := journal.Stop(shutdownCtx); err != nil {
			logger.Warn("journal writer stop failed", "error", err)
		}
		logger.Info("journal writer totals", "stats", journal.Stats())
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Warn("sink close failed", "error", err)
		}
	}
	if err := metrics.Shutdown(shutdownCtx, metricsSrv); err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}

	logger.Info("simulator stopped", "tick", eng.CurrentTick())
	return nil
}

// openSink returns the configured durable log, or nil for the memory
// backend. The pool is non-nil only for postgres and must be closed by the
// caller after the sink.
func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (writer.Sink, *pgxpool.Pool, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Info("storage disabled, history is kept in memory only")
		return nil, nil, nil

	case "postgres":
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database connected")
		return writer.NewPostgresSink(pool, logger), pool, nil

	default:
		sink, err := writer.NewFileSink(cfg.Storage.Dir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open file sink: %w", err)
		}
		logger.Info("file sink opened", "dir", cfg.Storage.Dir)
		return sink, nil, nil
	}
}

// seed returns the configured seed, or one from the clock when unset.
func seed(configured int64) uint64 {
	if configured != 0 {
		return uint64(configured)
	}
	return uint64(time.Now().UnixNano())
}
