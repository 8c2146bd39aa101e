// Package config loads the client configuration from an optional YAML file,
// an optional .env file and POLICYASSIST_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	tracing "github.com/policyassist/policyassist/internal/observability"
	"github.com/policyassist/policyassist/pkg/batch"
	"github.com/policyassist/policyassist/pkg/gateway"
	"github.com/policyassist/policyassist/pkg/observability"
	"github.com/policyassist/policyassist/pkg/store"
	"gopkg.in/yaml.v3"
)

// MaxFileSize caps the configuration file.
const MaxFileSize = 1 << 20

// Environment overrides.
const (
	EnvAPIURL    = "POLICYASSIST_API_URL"
	EnvStore     = "POLICYASSIST_STORE"
	EnvStateDir  = "POLICYASSIST_STATE_DIR"
	EnvRedisAddr = "POLICYASSIST_REDIS_ADDR"
	EnvLogFile   = "POLICYASSIST_LOG_FILE"
	EnvDebug     = "POLICYASSIST_DEBUG"
)

// Config represents the application configuration
type Config struct {
	API     APIConfig               `yaml:"api"`
	Store   store.Config            `yaml:"store"`
	Log     observability.LogConfig `yaml:"log"`
	Tracing tracing.Config          `yaml:"tracing"`
	Batch   BatchConfig             `yaml:"batch"`
	Search  SearchConfig            `yaml:"search"`
	Monitor MonitorConfig           `yaml:"monitor"`
	Metrics MetricsConfig           `yaml:"metrics"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds each HTTP request. Zero leaves timing to the transport.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit paces outgoing requests; zero disables pacing.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// RouteLimits adds tighter pacing for individual routes, keyed by route
	// label such as "/policies/upload-batch" or "/policies/{id}/query".
	RouteLimits map[string]RouteLimit `yaml:"route_limits"`
}

// RouteLimit paces one route.
type RouteLimit struct {
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// BatchConfig bounds batch uploads.
type BatchConfig struct {
	MaxSize int `yaml:"max_size"`
}

// SearchConfig tunes the pickers.
type SearchConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// MonitorConfig drives the availability monitor.
type MonitorConfig struct {
	Schedule string   `yaml:"schedule"`
	Policies []string `yaml:"policies"`
}

// MetricsConfig exposes /metrics and /health. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: gateway.DefaultBaseURL,
		},
		Store: store.Config{
			Backend: "file",
			BaseDir: store.DefaultBaseDir(),
		},
		Tracing: tracing.ConfigFromEnv(),
		Batch:   BatchConfig{MaxSize: batch.DefaultMaxSize},
		Search:  SearchConfig{Delay: 300 * time.Millisecond},
		Monitor: MonitorConfig{Schedule: "@every 5m"},
	}
}

// LoadConfig loads path over the defaults, then applies the environment.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("config file too large (max %d bytes)", MaxFileSize)
	}
	return data, nil
}

// LoadEnvFile loads variables from the .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from POLICYASSIST_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		c.Store.BaseDir = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		c.Log.Debug = debug
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = d.API.Timeout
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.BaseDir == "" {
		c.Store.BaseDir = d.Store.BaseDir
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = store.NamespaceFor(c.API.BaseURL)
	}
	if c.Batch.MaxSize == 0 {
		c.Batch.MaxSize = d.Batch.MaxSize
	}
	if c.Search.Delay == 0 {
		c.Search.Delay = d.Search.Delay
	}
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = d.Monitor.Schedule
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return fmt.Errorf("api.rate_limit and api.burst must not be negative")
	}
	for route, rl := range c.API.RouteLimits {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("api.route_limits: route %q must start with /", route)
		}
		if rl.RateLimit <= 0 || rl.Burst < 0 {
			return fmt.Errorf("api.route_limits[%s]: rate_limit must be positive and burst not negative", route)
		}
	}

	switch c.Store.Backend {
	case "memory", "file":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Batch.MaxSize < 1 {
		return fmt.Errorf("batch.max_size must be at least 1")
	}
	if c.Search.Delay < 0 {
		return fmt.Errorf("search.delay must not be negative")
	}
	return nil
}
