package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/webreader/internal/reader"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4041 {
		t.Fatalf("expected default port 4041, got %d", cfg.Server.Port)
	}
	if cfg.DefaultEngine() != reader.EngineDirect {
		t.Fatalf("expected direct default engine, got %s", cfg.DefaultEngine())
	}
	if cfg.Reader.DirectTimeout != 10*time.Second || cfg.Reader.RenderedTimeout != 15*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg.Reader)
	}
	if cfg.Reader.PromoteBelowBytes != 2048 {
		t.Fatalf("unexpected promote threshold: %d", cfg.Reader.PromoteBelowBytes)
	}
	if cfg.Reader.SettleWait != 1500*time.Millisecond {
		t.Fatalf("unexpected settle wait: %v", cfg.Reader.SettleWait)
	}
	if cfg.Cache.MaxEntries != 100 || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.RateLimit.RequestsPerMinute != 100 {
		t.Fatalf("unexpected rate limit: %d", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Auth.APIKey != "" {
		t.Fatal("expected auth to be disabled by default")
	}
	if cfg.Telemetry.TracingEnabled || cfg.Telemetry.ServiceName != "webreader" || cfg.Telemetry.SampleRatio != 1 {
		t.Fatalf("unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout: 3s
logging:
  development: true
auth:
  api_key: secret
rate_limit:
  requests_per_minute: 20
reader:
  default_engine: browser
  direct_timeout: 5s
  rendered_timeout: 30s
  settle_wait: 250ms
  max_content_length: 5000
  user_agent: test-agent
cache:
  max_entries: 7
  ttl: 90s
browser:
  enabled: true
  exec_path: /usr/bin/chromium
  max_parallel: 2
  blocked_patterns: ["*.doubleclick.net"]
guard:
  blocked_hosts: ["*.corp.internal", "intranet"]
tokens:
  model: gpt-4o
telemetry:
  tracing_enabled: true
  gcp_project_id: demo-project
  sample_ratio: 0.25
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if !cfg.Logging.Development || cfg.Auth.APIKey != "secret" || cfg.RateLimit.RequestsPerMinute != 20 {
		t.Fatalf("unexpected ambient config: %+v", cfg)
	}
	if cfg.DefaultEngine() != reader.EngineRendered {
		t.Fatalf("expected browser alias to map to rendered, got %s", cfg.DefaultEngine())
	}
	if cfg.Reader.SettleWait != 250*time.Millisecond || cfg.Reader.MaxContentLength != 5000 {
		t.Fatalf("unexpected reader config: %+v", cfg.Reader)
	}
	if cfg.Cache.MaxEntries != 7 || cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Browser.ExecPath != "/usr/bin/chromium" || len(cfg.Browser.BlockedPatterns) != 1 {
		t.Fatalf("unexpected browser config: %+v", cfg.Browser)
	}
	if strings.Join(cfg.Guard.BlockedHosts, ",") != "*.corp.internal,intranet" {
		t.Fatalf("unexpected guard config: %+v", cfg.Guard)
	}
	if cfg.Tokens.Model != "gpt-4o" || !cfg.Tokens.Enabled {
		t.Fatalf("unexpected tokens config: %+v", cfg.Tokens)
	}
	if !cfg.Telemetry.TracingEnabled || cfg.Telemetry.GCPProjectID != "demo-project" || cfg.Telemetry.SampleRatio != 0.25 {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("READER_RATE_LIMIT_REQUESTS_PER_MINUTE", "5")
	t.Setenv("PORT", "8181")
	t.Setenv("API_KEY", "from-env")
	t.Setenv("READER_CACHE_TTL", "2m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimit.RequestsPerMinute != 5 {
		t.Fatalf("expected env rate limit, got %d", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.Server.Port != 8181 {
		t.Fatalf("expected PORT alias, got %d", cfg.Server.Port)
	}
	if cfg.Auth.APIKey != "from-env" {
		t.Fatalf("expected API_KEY alias, got %q", cfg.Auth.APIKey)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Fatalf("expected env ttl, got %v", cfg.Cache.TTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Server:    ServerConfig{Port: 1},
		RateLimit: RateLimitConfig{RequestsPerMinute: 1},
		Reader: ReaderConfig{
			DefaultEngine:    "direct",
			DirectTimeout:    time.Second,
			RenderedTimeout:  time.Second,
			MaxContentLength: 10,
		},
		Cache:   CacheConfig{MaxEntries: 1, TTL: time.Second},
		Browser: BrowserConfig{Enabled: true, MaxParallel: 1},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(c *Config){
		"port":            func(c *Config) { c.Server.Port = 0 },
		"rate limit":      func(c *Config) { c.RateLimit.RequestsPerMinute = -1 },
		"engine":          func(c *Config) { c.Reader.DefaultEngine = "telnet" },
		"rendered off":    func(c *Config) { c.Reader.DefaultEngine = "rendered"; c.Browser.Enabled = false },
		"auto off":        func(c *Config) { c.Reader.DefaultEngine = "auto"; c.Browser.Enabled = false },
		"direct timeout":  func(c *Config) { c.Reader.DirectTimeout = 0 },
		"render timeout":  func(c *Config) { c.Reader.RenderedTimeout = 0 },
		"settle":          func(c *Config) { c.Reader.SettleWait = -time.Second },
		"content length":  func(c *Config) { c.Reader.MaxContentLength = 0 },
		"cache size":      func(c *Config) { c.Cache.MaxEntries = 0 },
		"cache ttl":       func(c *Config) { c.Cache.TTL = 0 },
		"browser workers": func(c *Config) { c.Browser.MaxParallel = 0 },
		"sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
