// Package models defines the core data structures for the RQ exporter application.
// It includes the configuration model and the worker/queue abstractions the
// collectors read from the RQ backing store.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default values applied by SetDefaults.
const (
	DefaultServerHost    = "0.0.0.0"
	DefaultServerPort    = "9726"
	DefaultServerURI     = "/metrics"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultScrapeTimeout = "30s"
	DefaultRedisHost     = "localhost"
	DefaultRedisPort     = 6379
	DefaultKeyPrefix     = "rq:"
)

// RedisConfig holds the parameters used to open a connection to the Redis
// server backing RQ.
//
// URL, when set, takes precedence over every other field. AuthFile, when set,
// takes precedence over Auth. Auth is a pointer so that an absent password
// (nil) can be told apart from an empty one.
type RedisConfig struct {
	URL      string  `yaml:"url"`
	Host     string  `yaml:"host"`
	Port     int     `yaml:"port"`
	DB       int     `yaml:"db"`
	Auth     *string `yaml:"auth"`
	AuthFile string  `yaml:"authFile"`
}

// Config represents the complete application configuration for the RQ exporter.
type Config struct {
	Server struct {
		Host          string `yaml:"host"`
		Port          string `yaml:"port"`
		URI           string `yaml:"uri"`
		LogName       string `yaml:"logName"`
		LogLevel      string `yaml:"logLevel"`
		LogFormat     string `yaml:"logFormat"`
		ScrapeTimeout string `yaml:"scrapeTimeout"`
	} `yaml:"server"`

	Redis RedisConfig `yaml:"redis"`

	RQ struct {
		KeyPrefix    string `yaml:"keyPrefix"`
		JobsCacheTTL string `yaml:"jobsCacheTTL"`
	} `yaml:"rq"`

	OpenTelemetry struct {
		Enabled      bool    `yaml:"enabled"`
		Endpoint     string  `yaml:"endpoint"`
		Insecure     bool    `yaml:"insecure"`
		SamplingRate float64 `yaml:"samplingRate"`
	} `yaml:"opentelemetry"`
}

// SetDefaults fills optional fields left empty by the YAML file, the
// environment and the command line.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == "" {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.URI == "" {
		c.Server.URI = DefaultServerURI
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = DefaultLogFormat
	}
	if c.Server.ScrapeTimeout == "" {
		c.Server.ScrapeTimeout = DefaultScrapeTimeout
	}
	if c.Redis.Host == "" {
		c.Redis.Host = DefaultRedisHost
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = DefaultRedisPort
	}
	if c.RQ.KeyPrefix == "" {
		c.RQ.KeyPrefix = DefaultKeyPrefix
	}
	if c.OpenTelemetry.Enabled && c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}
}

// Validate checks if the configuration is valid and returns an error if not.
// It calls SetDefaults first, so a zero Config validates to the defaults.
//
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	c.SetDefaults()

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.URI, "/") {
		return fmt.Errorf("invalid metrics URI: %s (must start with /)", c.Server.URI)
	}
	if _, err := log.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Server.LogFormat)
	}
	if d, err := time.ParseDuration(c.Server.ScrapeTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid scrape timeout: %s", c.Server.ScrapeTimeout)
	}

	// Host, port and db are ignored when a URL is configured.
	if c.Redis.URL == "" {
		if c.Redis.Host == "" {
			return errors.New("redis host is required when no redis URL is set")
		}
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("invalid redis db: %d", c.Redis.DB)
		}
	}

	if _, err := c.GetJobsCacheTTL(); err != nil {
		return fmt.Errorf("invalid jobs cache TTL: %w", err)
	}

	if c.OpenTelemetry.Enabled {
		if c.OpenTelemetry.Endpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when tracing is enabled")
		}
		if c.OpenTelemetry.SamplingRate < 0 || c.OpenTelemetry.SamplingRate > 1 {
			return fmt.Errorf("invalid sampling rate: %v (must be between 0.0 and 1.0)", c.OpenTelemetry.SamplingRate)
		}
	}

	return nil
}

// GetServerAddress returns the complete server address for HTTP server binding.
// Format: host:port
//
// Example: "0.0.0.0:9726"
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetScrapeTimeout returns the maximum duration of a single scrape.
func (c *Config) GetScrapeTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ScrapeTimeout)
}

// GetJobsCacheTTL returns how long per-queue job counts may be reused across
// scrapes. An empty value disables caching.
func (c *Config) GetJobsCacheTTL() (time.Duration, error) {
	if c.RQ.JobsCacheTTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.RQ.JobsCacheTTL)
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, fmt.Errorf("negative duration %s", c.RQ.JobsCacheTTL)
	}
	return ttl, nil
}

// IsOTelEnabled reports whether OpenTelemetry tracing is configured.
func (c *Config) IsOTelEnabled() bool {
	return c.OpenTelemetry.Enabled
}

// RedisTarget returns a printable description of the Redis server the
// exporter connects to. Passwords embedded in a URL are redacted.
//
// Example: "redis://localhost:6379/0"
func (c *Config) RedisTarget() string {
	if c.Redis.URL != "" {
		u, err := url.Parse(c.Redis.URL)
		if err != nil {
			return "<invalid redis url>"
		}
		return u.Redacted()
	}
	return fmt.Sprintf("redis://%s:%d/%d", c.Redis.Host, c.Redis.Port, c.Redis.DB)
}

// MaskPassword returns a masked version of the inline Redis password for
// safe logging. A password read from a file is never loaded here.
//
// Example: "abcd1234efgh5678" -> "abcd****5678"
//
// For passwords of 8 characters or fewer, returns "****". Returns an empty
// string when no password is configured.
func (c *Config) MaskPassword() string {
	if c.Redis.Auth == nil {
		return ""
	}
	pass := *c.Redis.Auth
	if len(pass) <= 8 {
		return "****"
	}
	return pass[:4] + "****" + pass[len(pass)-4:]
}

// Equal reports whether both configurations select the same Redis server
// with the same credentials source.
func (r RedisConfig) Equal(other RedisConfig) bool {
	if r.URL != other.URL || r.Host != other.Host || r.Port != other.Port ||
		r.DB != other.DB || r.AuthFile != other.AuthFile {
		return false
	}
	if (r.Auth == nil) != (other.Auth == nil) {
		return false
	}
	return r.Auth == nil || *r.Auth == *other.Auth
}
