// Package config loads the simulator configuration from YAML.
//
// Files may reference environment variables as ${VAR}; a .env file in the
// working directory is loaded first when present. Every optional field has
// a default (see defaults.go), so an empty file is a runnable configuration.
package config

import "time"

// Config is the root configuration for a simulator instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Simulation SimulationConfig `yaml:"simulation"`
	Rollup     RollupConfig     `yaml:"rollup"`
	Registry   RegistryConfig   `yaml:"registry"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DBConfig         `yaml:"database"`
	Writers    WritersConfig    `yaml:"writers"`
	Server     ServerConfig     `yaml:"server"`
	Stream     StreamConfig     `yaml:"stream"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this simulator.
type InstanceConfig struct {
	ID string `yaml:"id"` // Random UUID when empty
}

// SimulationConfig controls the tick driver and the price source.
type SimulationConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"` // Wall-clock time per tick
	Seed         int64         `yaml:"seed"`          // 0 = seed from the clock
	Step         float64       `yaml:"step"`          // Random-walk step size
	MaxSamples   int           `yaml:"max_samples"`   // Raw samples kept per ticker, 0 = unbounded
}

// RollupConfig controls aggregation and retention.
type RollupConfig struct {
	Extremes  string `yaml:"extremes"`  // "averages" or "hierarchical"
	Retention int    `yaml:"retention"` // Records kept per (ticker, granularity)
}

// RegistryConfig lists the simulated instruments by group.
type RegistryConfig struct {
	Groups []GroupConfig `yaml:"groups"`
}

// GroupConfig is one named group of instruments.
type GroupConfig struct {
	Name        string             `yaml:"name"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// InstrumentConfig is one simulated stock.
type InstrumentConfig struct {
	Ticker      string  `yaml:"ticker"`
	Nationality string  `yaml:"nationality"`
	BasePrice   float64 `yaml:"base_price"`
}

// StorageConfig selects the durable log backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"`      // "file", "postgres" or "memory"
	Dir         string `yaml:"dir"`          // Log directory for the file backend
	SkipRestore bool   `yaml:"skip_restore"` // Start empty instead of reloading the log
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds journal writer settings.
type WritersConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	BufferSize   int           `yaml:"buffer_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	OpTimeout    time.Duration `yaml:"op_timeout"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"` // gin mode: "release", "debug" or "test"
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StreamConfig holds live websocket feed settings.
type StreamConfig struct {
	Path                 string        `yaml:"path"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	SubscriberBufferSize int           `yaml:"subscriber_buffer_size"`
	SubscriberBufferMax  int           `yaml:"subscriber_buffer_max"`
}

// KafkaConfig holds aggregate event publishing settings.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string   `yaml:"level"`  // debug, info, warn, error
	Format      string   `yaml:"format"` // json or console
	OutputPaths []string `yaml:"output_paths"`
}
