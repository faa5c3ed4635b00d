// streamtest connects to a running simulator and prints its live feed.
// Usage: go run ./cmd/streamtest --url http://localhost:8080 --group C25
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/api"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/config"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/connection"
	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "simulator base URL")
	streamPath := flag.String("path", config.DefaultStreamPath, "websocket stream path")
	group := flag.String("group", "", "only stream tickers of this group")
	tickers := flag.String("tickers", "", "comma-separated tickers to stream")
	aggregatesOnly := flag.Bool("aggregates", false, "hide price ticks")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	apiClient := api.NewClient(*baseURL, api.WithLogger(logger), api.WithTimeout(10*time.Second))

	health, err := apiClient.GetHealth(ctx)
	if err != nil {
		logger.Error("simulator not reachable", "url", *baseURL, "error", err)
		os.Exit(1)
	}
	logger.Info("simulator healthy",
		"instance_id", health.InstanceID,
		"tick", health.Tick,
		"version", health.Build.Version,
	)

	var filter []string
	if *tickers != "" {
		for _, t := range strings.Split(*tickers, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter = append(filter, t)
			}
		}
	}
	if *group != "" {
		members, err := apiClient.GetGroupTickers(ctx, *group)
		if err != nil {
			logger.Error("failed to resolve group", "group", *group, "error", err)
			os.Exit(1)
		}
		filter = append(filter, members...)
	}
	if len(filter) > 0 {
		nat, err := apiClient.GetNationalities(ctx, filter)
		if err != nil {
			logger.Warn("failed to fetch nationalities", "error", err)
		}
		for _, t := range filter {
			if latest, err := apiClient.GetHistoricalData(ctx, t, model.Minute, 1); err == nil && len(latest) == 1 {
				fmt.Printf("[HISTORY] ticker=%s nationality=%s last_minute_avg=%.4f\n", t, nat[t], latest[0].Average)
			}
		}
	}

	wsURL, err := streamURL(*baseURL, *streamPath)
	if err != nil {
		logger.Error("bad url", "error", err)
		os.Exit(1)
	}

	client := connection.NewClient(connection.ClientConfig{URL: wsURL, Tickers: filter}, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "url", wsURL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("streaming started - press Ctrl+C to stop", "url", wsURL, "tickers", filter)

	var received, prices, aggregates int64
	stats := time.NewTicker(10 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete", "received", received)
			return

		case err := <-client.Errors():
			logger.Error("connection error", "error", err)
			return

		case <-stats.C:
			st := client.Stats()
			logger.Info("stats",
				"client_id", client.ClientID(),
				"received", received,
				"dropped", st.Dropped,
				"invalid", st.Invalid,
				"prices", prices,
				"aggregates", aggregates,
			)

		case frame := <-client.Frames():
			received++
			if frame.Data != nil {
				if frame.Data.Type == "price" {
					prices++
				} else {
					aggregates++
				}
			}
			printFrame(frame, *verbose, *aggregatesOnly)
		}
	}
}

// printFrame prints one frame.
func printFrame(f connection.Frame, verbose, aggregatesOnly bool) {
	if verbose {
		fmt.Printf("%s %s\n", f.ReceivedAt.Format(time.RFC3339Nano), f.Raw)
		return
	}

	switch {
	case f.Data != nil && f.Data.Type == "price":
		if !aggregatesOnly {
			fmt.Printf("[PRICE] ticker=%s tick=%d price=%.4f\n", f.Data.Ticker, f.Data.Tick, f.Data.Price)
		}
	case f.Data != nil:
		fmt.Printf("[AGGREGATE] ticker=%s granularity=%s seq=%d avg=%.4f max=%.4f min=%.4f\n",
			f.Data.Ticker, f.Data.Granularity, f.Data.Seq, f.Data.Average, f.Data.Max, f.Data.Min)
	case f.Response != nil:
		fmt.Printf("[%s] id=%d %s\n", strings.ToUpper(f.Response.Type), f.Response.ID, f.Response.Msg)
	}
}

// streamURL maps an http(s) base URL to the ws(s) stream endpoint.
func streamURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}
