// Package config loads and validates reader configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/webreader/internal/reader"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Reader    ReaderConfig    `mapstructure:"reader"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AuthConfig defines API authentication. An empty key disables auth.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// RateLimitConfig bounds per-client request rates. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// ReaderConfig governs the fetch and extraction pipeline.
type ReaderConfig struct {
	DefaultEngine    string        `mapstructure:"default_engine"`
	DirectTimeout    time.Duration `mapstructure:"direct_timeout"`
	RenderedTimeout  time.Duration `mapstructure:"rendered_timeout"`
	SettleWait       time.Duration `mapstructure:"settle_wait"`
	MaxContentLength int           `mapstructure:"max_content_length"`
	UserAgent        string        `mapstructure:"user_agent"`
	// PromoteBelowBytes is the page size under which the auto engine
	// considers re-rendering script-heavy pages.
	PromoteBelowBytes int `mapstructure:"promote_below_bytes"`
}

// CacheConfig sizes the result cache.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	ExecPath        string   `mapstructure:"exec_path"`
	MaxParallel     int      `mapstructure:"max_parallel"`
	BlockedPatterns []string `mapstructure:"blocked_patterns"`
}

// GuardConfig extends the built-in host deny-list.
type GuardConfig struct {
	BlockedHosts []string `mapstructure:"blocked_hosts"`
}

// TokensConfig selects the encoding used for token estimates.
type TokensConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// TelemetryConfig controls OpenTelemetry tracing. Traces go to Cloud Trace when a project is set.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	GCPProjectID   string  `mapstructure:"gcp_project_id"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// envAliases keeps the short environment names working alongside READER_*.
var envAliases = map[string]string{
	"server.port":               "PORT",
	"auth.api_key":              "API_KEY",
	"reader.default_engine":     "DEFAULT_ENGINE",
	"reader.max_content_length": "MAX_CONTENT_LENGTH",
	"cache.max_entries":         "CACHE_MAX_SIZE",
}

// searchPaths are checked for config.yaml when no explicit file is given.
var searchPaths = []string{".", "/etc/webreader/", "$HOME/.webreader"}

// Load builds a Config from disk/environment. An empty path searches
// searchPaths and falls back to defaults when no file is found.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("READER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := "READER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4041)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("rate_limit.requests_per_minute", 100)
	v.SetDefault("reader.default_engine", string(reader.EngineDirect))
	v.SetDefault("reader.direct_timeout", "10s")
	v.SetDefault("reader.rendered_timeout", "15s")
	v.SetDefault("reader.settle_wait", "1500ms")
	v.SetDefault("reader.max_content_length", 100000)
	v.SetDefault("reader.user_agent", "")
	v.SetDefault("reader.promote_below_bytes", 2048)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.max_parallel", 4)
	v.SetDefault("browser.blocked_patterns", []string{})
	v.SetDefault("guard.blocked_hosts", []string{})
	v.SetDefault("tokens.enabled", true)
	v.SetDefault("tokens.model", "gpt-4")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "webreader")
	v.SetDefault("telemetry.gcp_project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be >= 0")
	}
	engine, err := reader.ParseEngine(c.Reader.DefaultEngine)
	if err != nil {
		return fmt.Errorf("reader.default_engine: %w", err)
	}
	if engine != reader.EngineDirect && !c.Browser.Enabled {
		return fmt.Errorf("reader.default_engine %q needs browser.enabled", engine)
	}
	if c.Reader.DirectTimeout <= 0 {
		return fmt.Errorf("reader.direct_timeout must be > 0")
	}
	if c.Reader.RenderedTimeout <= 0 {
		return fmt.Errorf("reader.rendered_timeout must be > 0")
	}
	if c.Reader.SettleWait < 0 {
		return fmt.Errorf("reader.settle_wait must be >= 0")
	}
	if c.Reader.MaxContentLength <= 0 {
		return fmt.Errorf("reader.max_content_length must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if c.Browser.Enabled && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0 when the browser is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// DefaultEngine returns the validated default engine.
func (c Config) DefaultEngine() reader.Engine {
	engine, err := reader.ParseEngine(c.Reader.DefaultEngine)
	if err != nil {
		return reader.EngineDirect
	}
	return engine
}
