package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/rollup"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Simulation.TickInterval <= 0 {
		return errors.New("simulation.tick_interval must be > 0")
	}
	if c.Simulation.Step <= 0 || math.IsInf(c.Simulation.Step, 0) || math.IsNaN(c.Simulation.Step) {
		return errors.New("simulation.step must be a positive number")
	}
	if c.Simulation.MaxSamples < 0 {
		return errors.New("simulation.max_samples must be >= 0")
	}
	if c.Simulation.MaxSamples > 0 && c.Simulation.MaxSamples < 60 {
		return fmt.Errorf("simulation.max_samples must be 0 or >= 60, got %d", c.Simulation.MaxSamples)
	}

	if _, err := rollup.ParseExtremes(c.Rollup.Extremes); err != nil {
		return fmt.Errorf("rollup.extremes: %w", err)
	}
	if c.Rollup.Retention < 1 {
		return errors.New("rollup.retention must be >= 1")
	}

	if err := c.Registry.validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case "postgres":
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be one of file, postgres, memory, got %q", c.Storage.Backend)
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}
	if c.Writers.MaxRetries < 0 {
		return errors.New("writers.max_retries must be >= 0")
	}
	if c.Writers.MaxBackoff < c.Writers.RetryBackoff {
		return fmt.Errorf("writers.max_backoff (%s) cannot be less than retry_backoff (%s)",
			c.Writers.MaxBackoff, c.Writers.RetryBackoff)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("server.mode must be one of release, debug, test, got %q", c.Server.Mode)
	}

	if !strings.HasPrefix(c.Stream.Path, "/") {
		return fmt.Errorf("stream.path must start with /, got %q", c.Stream.Path)
	}
	if c.Stream.SubscriberBufferMax < c.Stream.SubscriberBufferSize {
		return errors.New("stream.subscriber_buffer_max cannot be less than subscriber_buffer_size")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic is required when kafka is enabled")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

func (r *RegistryConfig) validate() error {
	if len(r.Groups) == 0 {
		return errors.New("registry.groups must not be empty")
	}

	groups := make(map[string]bool)
	tickers := make(map[string]bool)
	for i, g := range r.Groups {
		if g.Name == "" {
			return fmt.Errorf("registry.groups[%d].name is required", i)
		}
		if groups[g.Name] {
			return fmt.Errorf("registry.groups[%d]: duplicate group %q", i, g.Name)
		}
		groups[g.Name] = true

		for j, inst := range g.Instruments {
			prefix := fmt.Sprintf("registry.groups[%d].instruments[%d]", i, j)
			if inst.Ticker == "" {
				return fmt.Errorf("%s.ticker is required", prefix)
			}
			if tickers[inst.Ticker] {
				return fmt.Errorf("%s: duplicate ticker %q", prefix, inst.Ticker)
			}
			tickers[inst.Ticker] = true
			if math.IsNaN(inst.BasePrice) || math.IsInf(inst.BasePrice, 0) {
				return fmt.Errorf("%s.base_price must be finite", prefix)
			}
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
