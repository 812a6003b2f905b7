package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink type names accepted in sink.type
const (
	SinkTypeFile  = "file"
	SinkTypeRedis = "redis"
)

// Config represents agent configuration
type Config struct {
	// Server configuration (health check and metrics endpoints)
	Server ServerConfig `yaml:"server"`

	// Buffer pool configuration
	Pool PoolConfig `yaml:"pool"`

	// Sink configuration
	Sink SinkConfig `yaml:"sink"`

	// Sampler configuration
	Sampler SamplerConfig `yaml:"sampler"`

	// Interval between background flush passes. Buffers are also flushed
	// opportunistically on every reserve/commit; this ticker only covers
	// the case where producers go quiet with data still buffered.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// Graceful shutdown timeout
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// ServerConfig represents the admin HTTP server configuration
type ServerConfig struct {
	// Health check and metrics port (/health, /ready, /metrics)
	HealthCheckPort int `yaml:"health_check_port"`
}

// PoolConfig represents buffer pool configuration.
// Both values are fixed for the lifetime of the pool; changing them
// requires an agent restart.
type PoolConfig struct {
	// Number of slots in the pool
	BufferCount int `yaml:"buffer_count"`

	// Per-slot payload capacity in bytes
	BufferSize int `yaml:"buffer_size"`
}

// SinkConfig represents sink configuration
type SinkConfig struct {
	// Sink type: "file" or "redis"
	Type string `yaml:"type"`

	File  FileSinkConfig  `yaml:"file"`
	Redis RedisSinkConfig `yaml:"redis"`
}

// FileSinkConfig represents the file sink configuration
type FileSinkConfig struct {
	// Output file path
	Path string `yaml:"path"`
}

// RedisSinkConfig represents the Redis stream sink configuration
type RedisSinkConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Stream key flushed chunks are appended to
	Stream string `yaml:"stream"`

	// Cap on stream length (approximate trimming); 0 disables trimming
	MaxStreamLen int64 `yaml:"max_stream_len"`

	// Connection pool configuration
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retry configuration for the initial connection check
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Circuit breaker configuration
	BreakerMaxFailures int64         `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// SamplerConfig represents sampler configuration
type SamplerConfig struct {
	// Sampling frequency in samples per second
	Hz int `yaml:"hz"`

	// Maximum stack depth captured per sample
	MaxStackDepth int `yaml:"max_stack_depth"`

	// Hard cap on samples per second, protecting the pool from a
	// misconfigured frequency. 0 means "same as hz".
	RateLimit int `yaml:"rate_limit"`
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set default values
	setDefaults(&cfg)

	// Validate configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ValidateConfig validates the configuration (exported for hot reload)
func ValidateConfig(cfg *Config) error {
	return validateConfig(cfg)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	// Validate server configuration
	if cfg.Server.HealthCheckPort < 0 || cfg.Server.HealthCheckPort > 65535 {
		return fmt.Errorf("server.health_check_port must be between 0 and 65535")
	}

	// Validate pool configuration
	if cfg.Pool.BufferCount <= 0 {
		return fmt.Errorf("pool.buffer_count must be greater than 0")
	}
	if cfg.Pool.BufferSize <= 0 {
		return fmt.Errorf("pool.buffer_size must be greater than 0")
	}

	// Validate sink configuration
	switch cfg.Sink.Type {
	case SinkTypeFile:
		if cfg.Sink.File.Path == "" {
			return fmt.Errorf("sink.file.path is required for the file sink")
		}
	case SinkTypeRedis:
		if cfg.Sink.Redis.Addr == "" {
			return fmt.Errorf("sink.redis.addr is required for the redis sink")
		}
		if cfg.Sink.Redis.Stream == "" {
			return fmt.Errorf("sink.redis.stream is required for the redis sink")
		}
		if cfg.Sink.Redis.PoolSize <= 0 {
			return fmt.Errorf("sink.redis.pool_size must be greater than 0")
		}
	default:
		return fmt.Errorf("sink.type must be %q or %q, got %q", SinkTypeFile, SinkTypeRedis, cfg.Sink.Type)
	}

	// Validate sampler configuration
	if cfg.Sampler.Hz <= 0 {
		return fmt.Errorf("sampler.hz must be greater than 0")
	}
	if cfg.Sampler.MaxStackDepth <= 0 {
		return fmt.Errorf("sampler.max_stack_depth must be greater than 0")
	}

	if cfg.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be greater than 0")
	}

	// Validate graceful shutdown timeout
	if cfg.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be greater than 0")
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *Config) {
	if cfg.Server.HealthCheckPort == 0 {
		cfg.Server.HealthCheckPort = 9090
	}

	if cfg.Pool.BufferCount == 0 {
		cfg.Pool.BufferCount = 32
	}

	if cfg.Pool.BufferSize == 0 {
		cfg.Pool.BufferSize = 8192
	}

	if cfg.Sink.Type == "" {
		cfg.Sink.Type = SinkTypeFile
	}

	if cfg.Sink.Type == SinkTypeFile && cfg.Sink.File.Path == "" {
		cfg.Sink.File.Path = "prof-agent.out"
	}

	if cfg.Sink.Redis.Stream == "" {
		cfg.Sink.Redis.Stream = "prof-agent:samples"
	}

	if cfg.Sink.Redis.PoolSize == 0 {
		cfg.Sink.Redis.PoolSize = 10
	}

	if cfg.Sink.Redis.MinIdleConns == 0 {
		cfg.Sink.Redis.MinIdleConns = 2
	}

	if cfg.Sink.Redis.DialTimeout == 0 {
		cfg.Sink.Redis.DialTimeout = 5 * time.Second
	}

	if cfg.Sink.Redis.ReadTimeout == 0 {
		cfg.Sink.Redis.ReadTimeout = 3 * time.Second
	}

	if cfg.Sink.Redis.WriteTimeout == 0 {
		cfg.Sink.Redis.WriteTimeout = 3 * time.Second
	}

	if cfg.Sink.Redis.MaxRetries == 0 {
		cfg.Sink.Redis.MaxRetries = 3
	}

	if cfg.Sink.Redis.RetryDelay == 0 {
		cfg.Sink.Redis.RetryDelay = 100 * time.Millisecond
	}

	if cfg.Sink.Redis.BreakerMaxFailures == 0 {
		cfg.Sink.Redis.BreakerMaxFailures = 5
	}

	if cfg.Sink.Redis.BreakerTimeout == 0 {
		cfg.Sink.Redis.BreakerTimeout = 10 * time.Second
	}

	if cfg.Sampler.Hz == 0 {
		cfg.Sampler.Hz = 100
	}

	if cfg.Sampler.MaxStackDepth == 0 {
		cfg.Sampler.MaxStackDepth = 64
	}

	if cfg.Sampler.RateLimit == 0 {
		cfg.Sampler.RateLimit = cfg.Sampler.Hz
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 1 * time.Second
	}

	if cfg.GracefulShutdownTimeout == 0 {
		cfg.GracefulShutdownTimeout = 30 * time.Second
	}
}
