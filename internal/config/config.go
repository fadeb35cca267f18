// Package config provides the configuration of the sds server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "SDS_"

// Config holds the configuration of an sds process.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log" envPrefix:"LOG_"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http" envPrefix:"HTTP_"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc" envPrefix:"GRPC_"`

	// Storage configuration for stream snapshots
	Storage StorageConfig `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot" envPrefix:"SNAPSHOT_"`

	// Query limits
	Query QueryConfig `json:"query" yaml:"query" envPrefix:"QUERY_"`

	// Read statistics configuration
	Stats StatsConfig `json:"stats" yaml:"stats" envPrefix:"STATS_"`

	// Tracing configuration
	Tracing TracingConfig `json:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level" env:"LEVEL"`

	// Format is text or json
	Format string `json:"format" yaml:"format" env:"FORMAT"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the REST listen address
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" env:"TYPE"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path" env:"PATH"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3" envPrefix:"S3_"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" env:"BUCKET"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" env:"REGION"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`

	// UsePathStyle addresses buckets by path, as MinIO expects
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// SnapshotConfig controls stream snapshots.
type SnapshotConfig struct {
	// Enabled turns on restore at start and periodic flushes
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Prefix is the object path prefix of snapshots
	Prefix string `json:"prefix" yaml:"prefix" env:"PREFIX"`

	// Concurrency bounds parallel snapshot uploads
	Concurrency int `json:"concurrency" yaml:"concurrency" env:"CONCURRENCY"`

	// FlushInterval is the period between flushes; zero flushes only on
	// shutdown
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

// QueryConfig bounds the work of a single read.
type QueryConfig struct {
	// MaxCount is the largest count a range or sampled read may request
	MaxCount int `json:"max_count" yaml:"max_count" env:"MAX_COUNT"`
}

// StatsConfig controls the read statistics behind GET /api/v1/stats/reads.
type StatsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED"`

	// Window is how long an unused property stays in the statistics
	Window time.Duration `json:"window" yaml:"window" env:"WINDOW"`
}

// TracingConfig controls OpenTelemetry export of gRPC spans.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL; empty disables export
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`

	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/sds",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Snapshot: SnapshotConfig{
			Enabled:       true,
			Prefix:        "streams/",
			Concurrency:   4,
			FlushInterval: time.Minute,
		},
		Query: QueryConfig{
			MaxCount: 100000,
		},
		Stats: StatsConfig{
			Enabled: true,
			Window:  time.Hour,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/sds"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Snapshot.Prefix == "" {
		c.Snapshot.Prefix = "streams/"
	}
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Snapshot.Concurrency < 1 {
		return fmt.Errorf("snapshot.concurrency must be at least 1, got %d", c.Snapshot.Concurrency)
	}
	if c.Snapshot.FlushInterval < 0 {
		return fmt.Errorf("snapshot.flush_interval must not be negative, got %s", c.Snapshot.FlushInterval)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %g", c.Tracing.SampleRatio)
	}
	if c.Query.MaxCount < 1 {
		return fmt.Errorf("query.max_count must be at least 1, got %d", c.Query.MaxCount)
	}
	if c.Stats.Enabled && c.Stats.Window <= 0 {
		return fmt.Errorf("stats.window must be positive when stats are enabled, got %s", c.Stats.Window)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables prefixed with SDS_ onto cfg.
// Unset variables leave the current value in place.
func LoadFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
