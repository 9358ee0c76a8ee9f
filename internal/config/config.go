// Package config holds client and origin server configuration plus the
// YAML fetch manifest format.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can write "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ClientConfig holds configuration for the fetchq client.
type ClientConfig struct {
	Concurrency int      `yaml:"concurrency"` // dispatch window size
	Retries     int      `yaml:"retries"`     // default total attempt budget
	Timeout     Duration `yaml:"timeout"`     // per-attempt timeout
	RateLimit   float64  `yaml:"rateLimit"`   // attempts per second, 0 = unlimited
	RateBurst   int      `yaml:"rateBurst"`   // rate limiter burst, 0 = 1
	UserAgent   string   `yaml:"userAgent"`
	LogLevel    string   `yaml:"logLevel"`    // debug, info, warn, error
	LogFormat   string   `yaml:"logFormat"`   // text, json
	JournalPath string   `yaml:"journal"`     // SQLite journal path, "" disables
	MetricsAddr string   `yaml:"metricsAddr"` // serve Prometheus metrics when set
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Concurrency: 6,
		Retries:     3,
		Timeout:     Duration(30 * time.Second),
		UserAgent:   "fetchq",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// LoadClientConfig reads a YAML config file over the defaults. Unknown
// keys are rejected so typos surface instead of silently applying the
// default.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := unmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the ranges the queue and transport would reject later.
func (c ClientConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must not be negative, got %g", c.RateLimit)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout.Std())
	}
	return nil
}

// OriginConfig holds configuration for the built-in origin test server.
type OriginConfig struct {
	Addr      string `yaml:"addr"`      // listen address (default ":8080")
	LogLevel  string `yaml:"logLevel"`  // debug, info, warn, error
	LogFormat string `yaml:"logFormat"` // text, json
}

// DefaultOriginConfig returns sensible defaults.
func DefaultOriginConfig() OriginConfig {
	return OriginConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// unmarshalStrict decodes YAML rejecting unknown fields. An empty
// document leaves the target untouched.
func unmarshalStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
