// Package config handles configuration layering: defaults, an optional TOML
// file, a .env file, environment variables and CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Environment variables consulted when resolving the endpoint and API key.
const (
	EnvBaseURL        = "RELIAPI_URL"
	EnvAPIKey         = "RAPIDAPI_KEY"
	EnvAPIKeyFallback = "RELIAPI_API_KEY"
)

const (
	DefaultBaseURL      = "https://reliapi.kikuai.dev"
	PlaceholderAPIKey   = "your-api-key"
	DefaultAPIKeyHeader = "X-RapidAPI-Key"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/reliapi-demo/config.toml",
	"configs/config.toml",
}

// CLI holds the global command-line flags parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	EnvFile  string `kong:"name='env-file',help='Dotenv file loaded before reading the environment.',default='.env'"`
	BaseURL  string `kong:"name='base-url',help='ReliAPI base URL (overrides RELIAPI_URL and config).'"`
	APIKey   string `kong:"name='api-key',help='ReliAPI API key (overrides RAPIDAPI_KEY, RELIAPI_API_KEY and config).'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	Demo DemoCmd `kong:"cmd,default='withargs',help='Run the four ReliAPI demonstrations (default).'"`
	Mock MockCmd `kong:"cmd,help='Serve a local stand-in for the ReliAPI proxy endpoints.'"`
}

// DemoCmd holds flags of the demo subcommand.
type DemoCmd struct {
	Only []string `kong:"help='Run only the named demonstrations: http, llm, cache, error.'"`
}

// MockCmd holds flags of the mock subcommand.
type MockCmd struct {
	Host string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
}

// Config is the top-level application configuration.
type Config struct {
	ReliAPI ReliAPIConfig `toml:"reliapi"`
	Client  ClientConfig  `toml:"client"`
	Demo    DemoConfig    `toml:"demo"`
	Mock    MockConfig    `toml:"mock"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ReliAPIConfig identifies the remote service and the credentials sent to it.
type ReliAPIConfig struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	APIKeyHeader string `toml:"api_key_header"`
}

// ClientConfig holds outbound connection settings.
type ClientConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// DemoConfig parameterises the demonstration requests.
type DemoConfig struct {
	HTTPTarget         string `toml:"http_target"`
	HTTPPath           string `toml:"http_path"`
	HTTPCacheSeconds   int    `toml:"http_cache_seconds"`
	LLMTarget          string `toml:"llm_target"`
	LLMModel           string `toml:"llm_model"`
	MaxTokens          int    `toml:"max_tokens"`
	CacheSeconds       int    `toml:"cache_seconds"`
	OversizedMaxTokens int    `toml:"oversized_max_tokens"`
	KeyPrefix          string `toml:"key_prefix"`
}

// MockConfig holds settings of the local stand-in server.
type MockConfig struct {
	Host            string          `toml:"host"`
	Port            int             `toml:"port"` // 0 means "use default" (8000)
	BodyMaxBytes    int64           `toml:"body_max_bytes"`
	BudgetMaxTokens int             `toml:"budget_max_tokens"`
	RateLimit       RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting of the mock server.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings of the mock server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load builds the configuration. The TOML file is optional: when no explicit
// path is given and none of the search paths exists, only defaults,
// environment and flags apply.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	if err := loadDotenv(cli.EnvFile); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// loadDotenv loads variables from a dotenv file without overriding ones
// already present in the environment. A missing file is not an error.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with the environment. The API key comes from
// the primary variable, then the fallback one.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvBaseURL); v != "" {
		c.ReliAPI.BaseURL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		c.ReliAPI.APIKey = v
	} else if v := getenv(EnvAPIKeyFallback); v != "" {
		c.ReliAPI.APIKey = v
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.BaseURL != "" {
		c.ReliAPI.BaseURL = cli.BaseURL
	}
	if cli.APIKey != "" {
		c.ReliAPI.APIKey = cli.APIKey
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.Mock.Host != "" {
		c.Mock.Host = cli.Mock.Host
	}
	if cli.Mock.Port != 0 {
		c.Mock.Port = cli.Mock.Port
	}
}

func (c *Config) validate() error {
	if c.ReliAPI.BaseURL != "" {
		u, err := url.Parse(c.ReliAPI.BaseURL)
		if err != nil {
			return fmt.Errorf("reliapi.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("reliapi.base_url must use http or https; got %q", c.ReliAPI.BaseURL)
		}
		if u.Host == "" {
			return fmt.Errorf("reliapi.base_url has no host; got %q", c.ReliAPI.BaseURL)
		}
	}

	// Numeric bounds.
	if c.Client.TimeoutSeconds < 0 {
		return fmt.Errorf("client.timeout_seconds must be non-negative; got %d", c.Client.TimeoutSeconds)
	}
	if c.Client.IdleConnections < 0 {
		return fmt.Errorf("client.idle_connections must be non-negative; got %d", c.Client.IdleConnections)
	}
	for name, v := range map[string]int{
		"demo.http_cache_seconds":   c.Demo.HTTPCacheSeconds,
		"demo.max_tokens":           c.Demo.MaxTokens,
		"demo.cache_seconds":        c.Demo.CacheSeconds,
		"demo.oversized_max_tokens": c.Demo.OversizedMaxTokens,
		"mock.budget_max_tokens":    c.Mock.BudgetMaxTokens,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", name, v)
		}
	}
	if c.Mock.Port < 0 || c.Mock.Port > 65535 {
		return fmt.Errorf("mock.port must be 0–65535; got %d", c.Mock.Port)
	}
	if c.Mock.BodyMaxBytes < 0 {
		return fmt.Errorf("mock.body_max_bytes must be non-negative; got %d", c.Mock.BodyMaxBytes)
	}
	if c.Mock.RateLimit.Enabled && c.Mock.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("mock.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Mock.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/proxy", "/healthz", "/mock"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields. As in the TOML file, zero means "unset"
// for integer fields.
func (c *Config) setDefaults() {
	if c.ReliAPI.BaseURL == "" {
		c.ReliAPI.BaseURL = DefaultBaseURL
	}
	c.ReliAPI.BaseURL = strings.TrimRight(c.ReliAPI.BaseURL, "/")
	if c.ReliAPI.APIKey == "" {
		c.ReliAPI.APIKey = PlaceholderAPIKey
	}
	if c.ReliAPI.APIKeyHeader == "" {
		c.ReliAPI.APIKeyHeader = DefaultAPIKeyHeader
	}
	if c.Client.TimeoutSeconds == 0 {
		c.Client.TimeoutSeconds = 60
	}
	if c.Client.IdleConnections == 0 {
		c.Client.IdleConnections = 10
	}

	if c.Demo.HTTPTarget == "" {
		c.Demo.HTTPTarget = "jsonplaceholder"
	}
	if c.Demo.HTTPPath == "" {
		c.Demo.HTTPPath = "/posts/1"
	}
	if c.Demo.HTTPCacheSeconds == 0 {
		c.Demo.HTTPCacheSeconds = 300
	}
	if c.Demo.LLMTarget == "" {
		c.Demo.LLMTarget = "openai"
	}
	if c.Demo.LLMModel == "" {
		c.Demo.LLMModel = "gpt-4o-mini"
	}
	if c.Demo.MaxTokens == 0 {
		c.Demo.MaxTokens = 100
	}
	if c.Demo.CacheSeconds == 0 {
		c.Demo.CacheSeconds = 3600
	}
	if c.Demo.OversizedMaxTokens == 0 {
		c.Demo.OversizedMaxTokens = 100000
	}
	if c.Demo.KeyPrefix == "" {
		c.Demo.KeyPrefix = "go-example"
	}

	if c.Mock.Host == "" {
		c.Mock.Host = "127.0.0.1"
	}
	if c.Mock.Port == 0 {
		c.Mock.Port = 8000
	}
	if c.Mock.BodyMaxBytes == 0 {
		c.Mock.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Mock.BudgetMaxTokens == 0 {
		c.Mock.BudgetMaxTokens = 4096
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// UsesPlaceholderKey reports whether no real API key was configured.
func (c *Config) UsesPlaceholderKey() bool {
	return c.ReliAPI.APIKey == PlaceholderAPIKey
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the mock server listen address as host:port.
func (c *MockConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file holds an API key and is
// readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// WarnPlaceholderKey logs a warning when requests will carry the placeholder key.
// Remote calls are still made; the service answers them with an auth error.
func (c *Config) WarnPlaceholderKey(logger *slog.Logger) {
	if c.UsesPlaceholderKey() {
		logger.Warn("no API key configured; requests will use a placeholder and fail authentication",
			"env", []string{EnvAPIKey, EnvAPIKeyFallback},
		)
	}
}
