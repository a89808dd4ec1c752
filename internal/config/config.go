// Package config loads the entitystore server configuration from YAML files
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

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Search backends
const (
	SearchNone   = "none"
	SearchMemory = "memory"
	SearchDisk   = "disk"
)

// Config is the server runtime configuration
type Config struct {
	Log     LogConfig    `yaml:"log"`
	Server  ServerConfig `yaml:"server"`
	Store   StoreConfig  `yaml:"store"`
	Search  SearchConfig `yaml:"search"`
	Lookups LookupConfig `yaml:"lookups"`
	Schema  SchemaConfig `yaml:"schema"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	Caller bool   `yaml:"caller"`
}

// ServerConfig holds listener ports
type ServerConfig struct {
	GrpcPort    int `yaml:"grpc_port"`
	MetricsPort int `yaml:"metrics_port"` // 0 disables the observability server
}

// StoreConfig selects and configures the primary store
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis connection pool
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SearchConfig selects the search index sink
type SearchConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"` // index directory for the disk backend
}

// LookupConfig controls how key lookups treat store outages
type LookupConfig struct {
	// ConnectionErrorAsMiss answers lookups with "not found" when the store
	// cannot be reached
	ConnectionErrorAsMiss bool `yaml:"connection_error_as_miss"`
}

// SchemaConfig points at the entity schema file
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			GrpcPort:    7070,
			MetricsPort: 9090,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Search:  SearchConfig{Backend: SearchNone},
		Lookups: LookupConfig{ConnectionErrorAsMiss: true},
	}
}

// Load reads the given files in order over the defaults; later files
// override earlier ones. Unknown keys are rejected.
func Load(paths ...string) (*Config, error) {
	cfg := Default()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a single YAML document over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects unknown backends and unusable ports
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("config: store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	switch c.Search.Backend {
	case SearchNone, SearchMemory:
	case SearchDisk:
		if c.Search.Path == "" {
			return fmt.Errorf("config: search.path is required for the disk backend")
		}
	default:
		return fmt.Errorf("config: unknown search backend %q", c.Search.Backend)
	}

	if c.Server.GrpcPort <= 0 || c.Server.GrpcPort > 65535 {
		return fmt.Errorf("config: invalid grpc_port %d", c.Server.GrpcPort)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("config: invalid metrics_port %d", c.Server.MetricsPort)
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.GrpcPort {
		return fmt.Errorf("config: grpc_port and metrics_port must differ")
	}
	return nil
}
