// compactor trims the file-backed aggregate logs to the retention limit
// while the simulator is stopped.
// Usage: go run ./cmd/compactor --config configs/simulator.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/config"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/logging"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/simulator.example.yaml", "path to config file")
	keep := flag.Int("keep", 0, "records kept per granularity (default: rollup.retention)")
	dryRun := flag.Bool("dry-run", false, "only list the logs that would be compacted")
	flag.Parse()

	if err := run(*configPath, *keep, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "compactor: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, keep int, dryRun bool) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Backend != "file" {
		return fmt.Errorf("storage backend %q has no log files to compact", cfg.Storage.Backend)
	}
	if keep <= 0 {
		keep = cfg.Rollup.Retention
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := writer.NewFileSink(cfg.Storage.Dir, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	tickers, err := sink.Tickers()
	if err != nil {
		return err
	}
	logger.Info("compacting aggregate logs",
		"dir", cfg.Storage.Dir,
		"tickers", len(tickers),
		"keep", keep,
		"dry_run", dryRun,
	)

	total := 0
	for _, ticker := range tickers {
		if dryRun {
			logger.Info("would compact", "ticker", ticker, "path", sink.Path(ticker))
			continue
		}
		removed, err := sink.Compact(ctx, ticker, keep)
		if err != nil {
			return fmt.Errorf("compact %s: %w", ticker, err)
		}
		if removed > 0 {
			logger.Info("compacted", "ticker", ticker, "removed", removed)
		}
		total += removed
	}

	logger.Info("compaction complete", "removed", total)
	return nil
}
