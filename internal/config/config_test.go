package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "myip.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MYIP_LISTEN_ADDR", "PORT", "MYIP_LOOKUP_URL", "MYIP_TLS_CERT", "MYIP_TLS_KEY", "MYIP_METRICS_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.ListenAddr != "0.0.0.0:5001" {
		t.Fatalf("expected listen addr 0.0.0.0:5001, got %q", cfg.API.ListenAddr)
	}
	if cfg.Lookup.URL != "https://api.ipify.org" {
		t.Fatalf("expected ipify URL, got %q", cfg.Lookup.URL)
	}
	if cfg.Lookup.Timeout != 0 {
		t.Fatalf("expected no lookup timeout, got %s", cfg.Lookup.Timeout)
	}
	if cfg.RateLimit.Enabled || cfg.Metrics.Enabled || cfg.TLS.Enabled() {
		t.Fatal("expected optional features disabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
api:
  listen_addr: "127.0.0.1:8080"
lookup:
  url: "http://lookup.internal/ip"
  timeout: 3s
rate_limit:
  enabled: true
  requests_per_interval: 2
  interval: 10s
  trusted_proxies: ["10.0.0.1"]
metrics:
  enabled: true
  listen_addr: ":9999"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.ListenAddr != "127.0.0.1:8080" {
		t.Fatalf("expected 127.0.0.1:8080, got %q", cfg.API.ListenAddr)
	}
	if cfg.Lookup.URL != "http://lookup.internal/ip" {
		t.Fatalf("unexpected lookup url %q", cfg.Lookup.URL)
	}
	if cfg.Lookup.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.Lookup.Timeout)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerInterval != 2 || cfg.RateLimit.Interval != 10*time.Second {
		t.Fatalf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	// Unset keys keep their defaults.
	if cfg.RateLimit.StaleAfter != 5*time.Minute {
		t.Fatalf("expected default stale_after, got %s", cfg.RateLimit.StaleAfter)
	}
	if len(cfg.RateLimit.TrustedProxies) != 1 || cfg.RateLimit.TrustedProxies[0] != "10.0.0.1" {
		t.Fatalf("unexpected trusted proxies %v", cfg.RateLimit.TrustedProxies)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddr != ":9999" {
		t.Fatalf("unexpected metrics config %+v", cfg.Metrics)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MYIP_LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("PORT", "7100")
	t.Setenv("MYIP_LOOKUP_URL", "https://api64.ipify.org")
	t.Setenv("MYIP_METRICS_ADDR", ":9200")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.ListenAddr != "127.0.0.1:7100" {
		t.Fatalf("expected 127.0.0.1:7100, got %q", cfg.API.ListenAddr)
	}
	if cfg.Lookup.URL != "https://api64.ipify.org" {
		t.Fatalf("unexpected lookup url %q", cfg.Lookup.URL)
	}
	if cfg.Metrics.ListenAddr != ":9200" {
		t.Fatalf("unexpected metrics addr %q", cfg.Metrics.ListenAddr)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load("/nonexistent/myip.yaml"); err == nil {
			t.Fatal("expected error for missing file, got nil")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "api: [unclosed")
		if _, err := Load(path); err == nil {
			t.Fatal("expected parse error, got nil")
		}
	})

	t.Run("PORT with unparsable listen addr", func(t *testing.T) {
		t.Setenv("MYIP_LISTEN_ADDR", "no-port")
		t.Setenv("PORT", "80")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.API.ListenAddr = "" },
			wantErr: "api.listen_addr",
		},
		{
			name:    "relative lookup url",
			mutate:  func(c *Config) { c.Lookup.URL = "api.ipify.org" },
			wantErr: "lookup.url",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *Config) { c.Lookup.URL = "ftp://api.ipify.org" },
			wantErr: "lookup.url",
		},
		{
			name:    "negative lookup timeout",
			mutate:  func(c *Config) { c.Lookup.Timeout = -time.Second },
			wantErr: "lookup.timeout",
		},
		{
			name:    "cert without key",
			mutate:  func(c *Config) { c.TLS.Cert = "server.pem" },
			wantErr: "tls.cert",
		},
		{
			name: "rate limit without budget",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerInterval = 0
			},
			wantErr: "requests_per_interval",
		},
		{
			name: "invalid rate limit ignored when disabled",
			mutate: func(c *Config) {
				c.RateLimit.RequestsPerInterval = 0
			},
		},
		{
			name: "metrics without addr",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddr = ""
			},
			wantErr: "metrics.listen_addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
