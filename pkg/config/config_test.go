package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "rtctester/pkg/errors"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Test.URL = "ws://localhost:3333/app/stream"
	return cfg
}

func TestValidate_DefaultsWithURL(t *testing.T) {
	if err := validBaseConfig().Validate(); err != nil {
		t.Fatalf("expected default config with url to be valid, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "missing url",
			mutate: func(c *Config) { c.Test.URL = "" },
		},
		{
			name:   "url without scheme",
			mutate: func(c *Config) { c.Test.URL = "localhost:3333/app/stream" },
		},
		{
			name:   "url without host",
			mutate: func(c *Config) { c.Test.URL = "ws:///app/stream" },
		},
		{
			name:   "negative clients",
			mutate: func(c *Config) { c.Test.Clients = -1 },
		},
		{
			name:   "zero report interval",
			mutate: func(c *Config) { c.Test.ReportInterval = 0 },
		},
		{
			name:   "negative lifetime",
			mutate: func(c *Config) { c.Test.Lifetime = -time.Second },
		},
		{
			name:   "zero sample interval",
			mutate: func(c *Config) { c.Test.SampleInterval = 0 },
		},
		{
			name: "port range only min",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 10000
			},
		},
		{
			name: "port range inverted",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 20000
				c.WebRTC.PortRange.Max = 10000
			},
		},
		{
			name: "redis without channel",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Channel = ""
			},
		},
		{
			name: "rate limit without burst",
			mutate: func(c *Config) {
				c.Monitoring.RateLimit.RequestsPerSecond = 5
				c.Monitoring.RateLimit.Burst = 0
			},
		},
		{
			name: "monitoring without address",
			mutate: func(c *Config) {
				c.Monitoring.Enabled = true
				c.Monitoring.Address = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
			if !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
test:
  url: "wss://ome.example.com:3334/app/stream"
  clients: 20
  connection_interval: 250ms
  lifetime: 30s
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RTCTESTER_CLIENTS", "40")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Test.URL != "wss://ome.example.com:3334/app/stream" {
		t.Errorf("url = %q", cfg.Test.URL)
	}
	if cfg.Test.Clients != 40 {
		t.Errorf("clients = %d, want env override 40", cfg.Test.Clients)
	}
	if cfg.Test.ConnectionInterval != 250*time.Millisecond {
		t.Errorf("connection_interval = %v", cfg.Test.ConnectionInterval)
	}
	if cfg.Test.Lifetime != 30*time.Second {
		t.Errorf("lifetime = %v", cfg.Test.Lifetime)
	}
	if cfg.Test.ReportInterval != DefaultReportInterval {
		t.Errorf("report_interval = %v, want default", cfg.Test.ReportInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "rtctester.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Signal.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v", cfg.Signal.RetryDelay)
	}
}

func TestNumericFallbacks(t *testing.T) {
	if got := ParseIntOr("abc", DefaultClients); got != DefaultClients {
		t.Errorf("ParseIntOr(abc) = %d", got)
	}
	if got := ParseIntOr("-3", 7); got != 7 {
		t.Errorf("ParseIntOr(-3) = %d", got)
	}
	if got := ParseIntOr("12", 7); got != 12 {
		t.Errorf("ParseIntOr(12) = %d", got)
	}
	if got := Milliseconds("x", DefaultConnectionInterval); got != DefaultConnectionInterval {
		t.Errorf("Milliseconds(x) = %v", got)
	}
	if got := Milliseconds("250", 0); got != 250*time.Millisecond {
		t.Errorf("Milliseconds(250) = %v", got)
	}
	if got := Seconds("", 0); got != 0 {
		t.Errorf("Seconds('') = %v", got)
	}
	if got := Seconds("3", 0); got != 3*time.Second {
		t.Errorf("Seconds(3) = %v", got)
	}
}
