package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultTickInterval         = 1 * time.Second
	DefaultStep                 = 0.1
	DefaultExtremes             = "averages"
	DefaultRetention            = 300
	DefaultStorageBackend       = "file"
	DefaultStorageDir           = "tickers"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 100
	DefaultBufferSize           = 1024
	DefaultMaxRetries           = 3
	DefaultRetryBackoff         = 100 * time.Millisecond
	DefaultMaxBackoff           = 5 * time.Second
	DefaultOpTimeout            = 5 * time.Second
	DefaultServerAddr           = ":8080"
	DefaultServerMode           = "release"
	DefaultReadTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultStreamPath           = "/ws/stream"
	DefaultPingInterval         = 15 * time.Second
	DefaultStreamWriteTimeout   = 10 * time.Second
	DefaultSubscriberBufferSize = 256
	DefaultSubscriberBufferMax  = 8192
	DefaultKafkaTopic           = "stock-aggregates"
	DefaultKafkaBatchTimeout    = 1 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
)

// DefaultGroups is the instrument registry used when none is configured.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Name: "C25",
			Instruments: []InstrumentConfig{
				{Ticker: "NOVO", Nationality: "Denmark", BasePrice: 750.0},
			},
		},
		{
			Name: "S&P500",
			Instruments: []InstrumentConfig{
				{Ticker: "AAPL", Nationality: "USA", BasePrice: 150.0},
			},
		},
	}
}

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// Simulation defaults
	if c.Simulation.TickInterval == 0 {
		c.Simulation.TickInterval = DefaultTickInterval
	}
	if c.Simulation.Step == 0 {
		c.Simulation.Step = DefaultStep
	}

	// Rollup defaults
	if c.Rollup.Extremes == "" {
		c.Rollup.Extremes = DefaultExtremes
	}
	if c.Rollup.Retention == 0 {
		c.Rollup.Retention = DefaultRetention
	}

	if len(c.Registry.Groups) == 0 {
		c.Registry.Groups = DefaultGroups()
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultStorageDir
	}

	applyDBDefaults(&c.Database)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}
	if c.Writers.MaxRetries == 0 {
		c.Writers.MaxRetries = DefaultMaxRetries
	}
	if c.Writers.RetryBackoff == 0 {
		c.Writers.RetryBackoff = DefaultRetryBackoff
	}
	if c.Writers.MaxBackoff == 0 {
		c.Writers.MaxBackoff = DefaultMaxBackoff
	}
	if c.Writers.OpTimeout == 0 {
		c.Writers.OpTimeout = DefaultOpTimeout
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.Mode == "" {
		c.Server.Mode = DefaultServerMode
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Stream defaults
	if c.Stream.Path == "" {
		c.Stream.Path = DefaultStreamPath
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultStreamWriteTimeout
	}
	if c.Stream.SubscriberBufferSize == 0 {
		c.Stream.SubscriberBufferSize = DefaultSubscriberBufferSize
	}
	if c.Stream.SubscriberBufferMax == 0 {
		c.Stream.SubscriberBufferMax = DefaultSubscriberBufferMax
	}

	// Kafka defaults
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout"}
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
