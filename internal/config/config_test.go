package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: sim-test
simulation:
  tick_interval: 250ms
  seed: 42
registry:
  groups:
    - name: C25
      instruments:
        - ticker: NOVO
          nationality: Denmark
          base_price: 750
        - ticker: MAERSK
          nationality: Denmark
          base_price: 12000
storage:
  backend: memory
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "sim-test" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "sim-test")
	}
	if cfg.Simulation.TickInterval != 250*time.Millisecond {
		t.Errorf("Simulation.TickInterval = %v, want 250ms", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.Seed != 42 {
		t.Errorf("Simulation.Seed = %d, want 42", cfg.Simulation.Seed)
	}
	if len(cfg.Registry.Groups) != 1 || len(cfg.Registry.Groups[0].Instruments) != 2 {
		t.Fatalf("Registry.Groups = %+v, want one group with two instruments", cfg.Registry.Groups)
	}
	if got := cfg.Registry.Groups[0].Instruments[1]; got.Ticker != "MAERSK" || got.BasePrice != 12000 {
		t.Errorf("second instrument = %+v", got)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
storage:
  backend: postgres
database:
  host: localhost
  name: stocks
  user: sim
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: sim-test\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Simulation.TickInterval != DefaultTickInterval {
		t.Errorf("Simulation.TickInterval = %v, want default %v", cfg.Simulation.TickInterval, DefaultTickInterval)
	}
	if cfg.Rollup.Retention != DefaultRetention {
		t.Errorf("Rollup.Retention = %d, want default %d", cfg.Rollup.Retention, DefaultRetention)
	}
	if cfg.Rollup.Extremes != DefaultExtremes {
		t.Errorf("Rollup.Extremes = %q, want default %q", cfg.Rollup.Extremes, DefaultExtremes)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("Storage.Backend = %q, want default %q", cfg.Storage.Backend, DefaultStorageBackend)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Instance.ID != "sim-test" {
		t.Errorf("Instance.ID = %q, explicit value must not be replaced", cfg.Instance.ID)
	}

	if len(cfg.Registry.Groups) != 2 {
		t.Fatalf("Registry.Groups has %d groups, want the 2 defaults", len(cfg.Registry.Groups))
	}
	if g := cfg.Registry.Groups[1]; g.Name != "S&P500" || g.Instruments[0].Ticker != "AAPL" || g.Instruments[0].BasePrice != 150 {
		t.Errorf("default group = %+v", g)
	}
}

func TestDefault_GeneratesInstanceID(t *testing.T) {
	a, b := Default(), Default()
	if a.Instance.ID == "" {
		t.Fatal("Default() left instance.id empty")
	}
	if a.Instance.ID == b.Instance.ID {
		t.Error("Default() should generate a fresh instance id")
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadAndValidate_EmptyPath(t *testing.T) {
	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate(\"\") failed: %v", err)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultServerAddr)
	}
}

func TestLoadAndValidate_Errors(t *testing.T) {
	if _, err := LoadAndValidate(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "storage:\n  backend: s3\n")
	_, err := LoadAndValidate(path)
	if err == nil || !strings.HasPrefix(err.Error(), "validate config:") {
		t.Errorf("LoadAndValidate error = %v, want validation error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "max samples below minute window",
			mutate:  func(c *Config) { c.Simulation.MaxSamples = 30 },
			wantErr: "simulation.max_samples must be 0 or >= 60, got 30",
		},
		{
			name:    "unknown extremes mode",
			mutate:  func(c *Config) { c.Rollup.Extremes = "weighted" },
			wantErr: `rollup.extremes: unknown extremes mode "weighted"`,
		},
		{
			name: "duplicate ticker across groups",
			mutate: func(c *Config) {
				c.Registry.Groups[1].Instruments = append(c.Registry.Groups[1].Instruments,
					InstrumentConfig{Ticker: "NOVO", BasePrice: 1})
			},
			wantErr: `registry.groups[1].instruments[1]: duplicate ticker "NOVO"`,
		},
		{
			name:    "missing group name",
			mutate:  func(c *Config) { c.Registry.Groups[0].Name = "" },
			wantErr: "registry.groups[0].name is required",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "s3" },
			wantErr: `storage.backend must be one of file, postgres, memory, got "s3"`,
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: "database.host is required",
		},
		{
			name: "postgres min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Storage.Backend = "postgres"
				c.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "kafka enabled without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: "kafka.brokers is required when kafka is enabled",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be json or console, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
