// Package config provides configuration loading for stackprobe.
//
// Configuration is assembled from defaults, an optional YAML file, and
// STACKPROBE_* environment variables. See LoadWithFile for precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Session storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendNATS   = "nats"
)

// Sink kinds.
const (
	SinkLog  = "log"
	SinkNATS = "nats"
)

// DefaultSessionKey is the versioned key the dedup record is stored under.
const DefaultSessionKey = "stackprobe:detection:v1"

// Config holds the complete stackprobe configuration.
type Config struct {
	Detection DetectionConfig `koanf:"detection"`
	Session   SessionConfig   `koanf:"session"`
	Sink      SinkConfig      `koanf:"sink"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

// DetectionConfig controls the detection pass.
type DetectionConfig struct {
	// Production selects the production-safe signal subset and disables
	// debug traces and debug logging.
	Production bool `koanf:"production"`

	// IdleTimeout is the ceiling handed to the host idle scheduler.
	IdleTimeout Duration `koanf:"idle_timeout"`

	// FallbackDelay is used when the host provides no idle scheduler.
	FallbackDelay Duration `koanf:"fallback_delay"`

	// CatalogPath points at an optional TOML file of extra signals.
	CatalogPath string `koanf:"catalog_path"`
}

// SessionConfig controls where the dedup record is persisted. ID scopes
// records in the nats backend; empty means a new session per process.
type SessionConfig struct {
	Backend string   `koanf:"backend"`
	ID      string   `koanf:"id"`
	Dir     string   `koanf:"dir"`
	Key     string   `koanf:"key"`
	TTL     Duration `koanf:"ttl"`
	NATSURL string   `koanf:"nats_url"`
	Bucket  string   `koanf:"bucket"`
}

// SinkConfig controls delivery of detected traits.
type SinkConfig struct {
	Kind          string  `koanf:"kind"`
	NATSURL       string  `koanf:"nats_url"`
	NATSToken     Secret  `koanf:"nats_token"`
	SubjectPrefix string  `koanf:"subject_prefix"`
	DistinctID    string  `koanf:"distinct_id"`
	RateLimit     float64 `koanf:"rate_limit"`
	Burst         int     `koanf:"burst"`
}

// LoggingConfig is the file/env facing subset of logging options.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the file/env facing subset of tracing options.
// Metrics additionally exports OTLP metrics every MetricsInterval.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	SampleRate      float64  `koanf:"sample_rate"`
	Metrics         bool     `koanf:"metrics"`
	MetricsInterval Duration `koanf:"metrics_interval"`
}

// ServerConfig holds the metrics/health HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns a configuration with development-friendly defaults.
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			Production:    false,
			IdleTimeout:   Duration(5 * time.Second),
			FallbackDelay: Duration(1500 * time.Millisecond),
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			Dir:     "~/.config/stackprobe/session",
			Key:     DefaultSessionKey,
			TTL:     Duration(30 * time.Minute),
			NATSURL: "nats://127.0.0.1:4222",
			Bucket:  "stackprobe_session",
		},
		Sink: SinkConfig{
			Kind:          SinkLog,
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "stackprobe",
			RateLimit:     1,
			Burst:         5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
			SampleRate:      1.0,
			MetricsInterval: Duration(30 * time.Second),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Detection.IdleTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("detection.idle_timeout must be positive"))
	}
	if c.Detection.FallbackDelay.Duration() <= 0 {
		errs = append(errs, errors.New("detection.fallback_delay must be positive"))
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Session.Dir == "" {
			errs = append(errs, errors.New("session.dir is required for the file backend"))
		}
	case BackendNATS:
		if c.Session.NATSURL == "" || c.Session.Bucket == "" {
			errs = append(errs, errors.New("session.nats_url and session.bucket are required for the nats backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend must be one of memory, file, nats; got %q", c.Session.Backend))
	}
	if c.Session.Key == "" {
		errs = append(errs, errors.New("session.key cannot be empty"))
	}

	switch c.Sink.Kind {
	case SinkLog:
	case SinkNATS:
		if c.Sink.NATSURL == "" {
			errs = append(errs, errors.New("sink.nats_url is required for the nats sink"))
		}
		if c.Sink.SubjectPrefix == "" {
			errs = append(errs, errors.New("sink.subject_prefix cannot be empty"))
		}
		if c.Sink.RateLimit <= 0 || c.Sink.Burst < 1 {
			errs = append(errs, fmt.Errorf("sink rate limit must be positive with burst >= 1, got %v/%d", c.Sink.RateLimit, c.Sink.Burst))
		}
	default:
		errs = append(errs, fmt.Errorf("sink.kind must be log or nats, got %q", c.Sink.Kind))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate))
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	return errors.Join(errs...)
}
