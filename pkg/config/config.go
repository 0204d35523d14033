package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	apperrors "rtctester/pkg/errors"

	"gopkg.in/yaml.v2"
)

// Defaults used when a value is absent or cannot be parsed.
const (
	DefaultClients            = 1
	DefaultConnectionInterval = 100 * time.Millisecond
	DefaultReportInterval     = 5000 * time.Millisecond
	DefaultSampleInterval     = time.Second
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Test struct {
		URL                string        `yaml:"url"`
		Clients            int           `yaml:"clients"`
		ConnectionInterval time.Duration `yaml:"connection_interval"`
		ReportInterval     time.Duration `yaml:"report_interval"`
		Lifetime           time.Duration `yaml:"lifetime"` // 0 = until interrupted
		SampleInterval     time.Duration `yaml:"sample_interval"`
		StreamTimeout      time.Duration `yaml:"stream_timeout"` // 0 = wait forever
		TeardownTimeout    time.Duration `yaml:"teardown_timeout"`
		StopOnCompletion   bool          `yaml:"stop_on_completion"`
	} `yaml:"test"`

	Signal struct {
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ConnectRetries int           `yaml:"connect_retries"`
		RetryDelay     time.Duration `yaml:"retry_delay"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		KeyframeRequestInterval time.Duration `yaml:"keyframe_request_interval"`
	} `yaml:"webrtc"`

	Monitoring struct {
		Enabled   bool   `yaml:"enabled"`
		Address   string `yaml:"address"`
		RateLimit struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if _, err := ParseTarget(c.Test.URL); err != nil {
		return err
	}
	if c.Test.Clients < 0 {
		return apperrors.NewConfigError("test.clients must be >= 0")
	}
	if c.Test.ConnectionInterval < 0 {
		return apperrors.NewConfigError("test.connection_interval must be >= 0")
	}
	if c.Test.ReportInterval <= 0 {
		return apperrors.NewConfigError("test.report_interval must be > 0")
	}
	if c.Test.Lifetime < 0 {
		return apperrors.NewConfigError("test.lifetime must be >= 0")
	}
	if c.Test.SampleInterval <= 0 {
		return apperrors.NewConfigError("test.sample_interval must be > 0")
	}
	if c.Test.StreamTimeout < 0 {
		return apperrors.NewConfigError("test.stream_timeout must be >= 0")
	}
	if c.Test.TeardownTimeout <= 0 {
		return apperrors.NewConfigError("test.teardown_timeout must be > 0")
	}

	if c.Signal.ConnectTimeout <= 0 {
		return apperrors.NewConfigError("signal.connect_timeout must be > 0")
	}
	if c.Signal.WriteTimeout <= 0 {
		return apperrors.NewConfigError("signal.write_timeout must be > 0")
	}
	if c.Signal.ConnectRetries < 0 {
		return apperrors.NewConfigError("signal.connect_retries must be >= 0")
	}

	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return apperrors.NewConfigError("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return apperrors.NewConfigError("webrtc.port_range.min must be < max")
		}
	}

	if c.Monitoring.Enabled && c.Monitoring.Address == "" {
		return apperrors.NewConfigError("monitoring.address must not be empty when monitoring.enabled=true")
	}
	if c.Monitoring.RateLimit.RequestsPerSecond < 0 {
		return apperrors.NewConfigError("monitoring.rate_limit.requests_per_second must be >= 0")
	}
	if c.Monitoring.RateLimit.RequestsPerSecond > 0 && c.Monitoring.RateLimit.Burst <= 0 {
		return apperrors.NewConfigError("monitoring.rate_limit.burst must be > 0 when rate limiting is on")
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return apperrors.NewConfigError("tracing.sample_rate must be within [0, 1]")
	}
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return apperrors.NewConfigError("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return apperrors.NewConfigError("redis.channel must not be empty when redis.enabled=true")
		}
	}
	if c.Logging.Level == "" {
		return apperrors.NewConfigError("logging.level must not be empty")
	}
	return nil
}

// ParseTarget validates the signaling URL every client connects to.
func ParseTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, apperrors.NewConfigError("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, fmt.Sprintf("url %q is not valid", raw))
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("url %q must use ws, wss, http or https", raw))
	}
	if u.Host == "" {
		return nil, apperrors.NewConfigError(fmt.Sprintf("url %q has no host", raw))
	}
	return u, nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// The result is not validated: command-line values are applied afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Test.Clients = DefaultClients
	cfg.Test.ConnectionInterval = DefaultConnectionInterval
	cfg.Test.ReportInterval = DefaultReportInterval
	cfg.Test.Lifetime = 0
	cfg.Test.SampleInterval = DefaultSampleInterval
	cfg.Test.StreamTimeout = 30 * time.Second
	cfg.Test.TeardownTimeout = 2 * time.Second
	cfg.Test.StopOnCompletion = true

	cfg.Signal.ConnectTimeout = 10 * time.Second
	cfg.Signal.WriteTimeout = 5 * time.Second
	cfg.Signal.ConnectRetries = 0
	cfg.Signal.RetryDelay = 500 * time.Millisecond

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	cfg.WebRTC.KeyframeRequestInterval = 2 * time.Second

	cfg.Monitoring.Enabled = false
	cfg.Monitoring.Address = ":9464"
	cfg.Monitoring.RateLimit.RequestsPerSecond = 20
	cfg.Monitoring.RateLimit.Burst = 40

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.Channel = "rtctester:reports"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RTCTESTER_URL"); v != "" {
		c.Test.URL = v
	}
	if v := os.Getenv("RTCTESTER_CLIENTS"); v != "" {
		c.Test.Clients = ParseIntOr(v, c.Test.Clients)
	}
	if v := os.Getenv("RTCTESTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RTCTESTER_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("RTCTESTER_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// ParseIntOr parses a non-negative integer, returning def for anything else.
func ParseIntOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Milliseconds converts a numeric argument in milliseconds, falling back to def.
func Milliseconds(s string, def time.Duration) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// Seconds converts a numeric argument in seconds, falling back to def.
func Seconds(s string, def time.Duration) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
