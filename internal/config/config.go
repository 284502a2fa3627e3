// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Log formats accepted by LOG_FORMAT.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config holds the bridge's configuration. Values come from defaults, then
// an optional YAML file, then environment variables, each overriding the last.
type Config struct {
	ListenAddr string `yaml:"listen_addr"` // HTTP listen address (default ":3333")
	LogLevel   string `yaml:"log_level"`   // debug, info, warn, error (default "info")
	LogFormat  string `yaml:"log_format"`  // json or text (default "json")

	// Diagnostics
	LogRequests bool `yaml:"log_requests"` // log each request body
	LogQueries  bool `yaml:"log_queries"`  // log each pipeline before it runs
	LogTimings  bool `yaml:"log_timings"`  // log sub-query execution time

	// CORS
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"` // default: ["*"]

	// Rate limiting; a RateLimitRPS of zero or less disables it.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`   // sustained requests per second (default 100)
	RateLimitBurst int     `yaml:"rate_limit_burst"` // burst capacity (default 200)

	MaxConcurrentSubQueries int           `yaml:"max_concurrent_subqueries"` // per request (default 8)
	MongoConnectTimeout     time.Duration `yaml:"mongo_connect_timeout"`     // default 10s
	MetricsEnabled          bool          `yaml:"metrics_enabled"`           // serve /metrics (default true)
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout"`          // default 10s

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ListenAddr:              ":3333",
		LogLevel:                "info",
		LogFormat:               LogFormatJSON,
		CORSAllowedOrigins:      []string{"*"},
		RateLimitRPS:            100,
		RateLimitBurst:          200,
		MaxConcurrentSubQueries: 8,
		MongoConnectTimeout:     10 * time.Second,
		MetricsEnabled:          true,
		ShutdownTimeout:         10 * time.Second,
	}
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the root logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, LogFormatText) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// RateLimitEnabled reports whether requests should be rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", LogFormatJSON, LogFormatText, c.LogFormat)
	}
	if c.MaxConcurrentSubQueries < 0 {
		return fmt.Errorf("MAX_CONCURRENT_SUBQUERIES must not be negative, got %d", c.MaxConcurrentSubQueries)
	}
	if c.RateLimitEnabled() && c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is enabled, got %d", c.RateLimitBurst)
	}
	return nil
}

// LoadFromEnv loads configuration from the file named by CONFIG_FILE, if
// any, and environment variables.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	c.LogRequests = c.envBool("LOG_REQUESTS", c.LogRequests)
	c.LogQueries = c.envBool("LOG_QUERIES", c.LogQueries)
	c.LogTimings = c.envBool("LOG_TIMINGS", c.LogTimings)
	c.MetricsEnabled = c.envBool("METRICS_ENABLED", c.MetricsEnabled)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.CORSAllowedOrigins = compactNonEmpty(origins)
	}
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = []string{"*"}
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitRPS = f
		} else {
			c.warnInvalid("RATE_LIMIT_RPS", v)
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitBurst = n
		} else {
			c.warnInvalid("RATE_LIMIT_BURST", v)
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_SUBQUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrentSubQueries = n
		} else {
			c.warnInvalid("MAX_CONCURRENT_SUBQUERIES", v)
		}
	}
	c.MongoConnectTimeout = c.envDuration("MONGO_CONNECT_TIMEOUT", c.MongoConnectTimeout)
	c.ShutdownTimeout = c.envDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	if !c.RateLimitEnabled() {
		c.Warnings = append(c.Warnings, "rate limiting is disabled (RATE_LIMIT_RPS <= 0)")
	}
}

func (c *Config) envBool(key string, current bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "":
		return current
	case "0", "false", "no", "off":
		return false
	case "1", "true", "yes", "on":
		return true
	}
	c.warnInvalid(key, v)
	return current
}

func (c *Config) envDuration(key string, current time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return current
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.warnInvalid(key, v)
		return current
	}
	return d
}

func (c *Config) warnInvalid(key, value string) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s=%q", key, value))
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
