package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pobradovic08/myip/internal/iplookup"
)

// Config holds all configuration for the myip service.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Lookup    LookupConfig    `yaml:"lookup"`
	TLS       TLSConfig       `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// LookupConfig configures the outbound IP-lookup call. A zero Timeout means
// the call is only bounded by the inbound request.
type LookupConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// Enabled reports whether both halves of the key pair are configured.
func (t TLSConfig) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

type RateLimitConfig struct {
	Enabled             bool          `yaml:"enabled"`
	RequestsPerInterval int           `yaml:"requests_per_interval"`
	Interval            time.Duration `yaml:"interval"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
	StaleAfter          time.Duration `yaml:"stale_after"`
	TrustedProxies      []string      `yaml:"trusted_proxies"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads a configuration from a YAML file and applies environment
// variable overrides. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MYIP_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		host, _, err := net.SplitHostPort(cfg.API.ListenAddr)
		if err != nil {
			return fmt.Errorf("apply PORT override to %q: %w", cfg.API.ListenAddr, err)
		}
		cfg.API.ListenAddr = net.JoinHostPort(host, v)
	}
	if v := os.Getenv("MYIP_LOOKUP_URL"); v != "" {
		cfg.Lookup.URL = v
	}
	if v := os.Getenv("MYIP_TLS_CERT"); v != "" {
		cfg.TLS.Cert = v
	}
	if v := os.Getenv("MYIP_TLS_KEY"); v != "" {
		cfg.TLS.Key = v
	}
	if v := os.Getenv("MYIP_METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.API.ListenAddr == "" {
		errs = append(errs, errors.New("api.listen_addr must not be empty"))
	}
	if c.API.ReadTimeout < 0 || c.API.WriteTimeout < 0 {
		errs = append(errs, errors.New("api timeouts must not be negative"))
	}

	u, err := url.Parse(c.Lookup.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("lookup.url %q must be an absolute http(s) URL", c.Lookup.URL))
	}
	if c.Lookup.Timeout < 0 {
		errs = append(errs, errors.New("lookup.timeout must not be negative"))
	}

	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerInterval <= 0 {
			errs = append(errs, errors.New("rate_limit.requests_per_interval must be positive"))
		}
		if c.RateLimit.Interval <= 0 || c.RateLimit.CleanupInterval <= 0 || c.RateLimit.StaleAfter <= 0 {
			errs = append(errs, errors.New("rate_limit intervals must be positive"))
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr must not be empty when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			ListenAddr:  "0.0.0.0:5001",
			ReadTimeout: 5 * time.Second,
		},
		Lookup: LookupConfig{
			URL: iplookup.DefaultURL,
		},
		RateLimit: RateLimitConfig{
			Enabled:             false,
			RequestsPerInterval: 10,
			Interval:            1 * time.Minute,
			CleanupInterval:     1 * time.Minute,
			StaleAfter:          5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9091",
		},
	}
}
