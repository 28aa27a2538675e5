// Package config loads the daemon configuration from a YAML file and
// PGCONN_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/crtsh/mod-pgconn/internal/domain"
)

// Config is the full daemon configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Sweep  SweepConfig  `yaml:"sweep" mapstructure:"sweep"`
	Pools  []PoolConfig `yaml:"pools" mapstructure:"pools"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address         string        `yaml:"address" mapstructure:"address"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// APIConfig holds settings for the admin API.
type APIConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// SweepConfig holds settings for the background maintenance loop shared by
// all pools.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// PoolConfig is the on-disk form of one pool definition.
type PoolConfig struct {
	Name         string        `yaml:"name" mapstructure:"name"`
	ConnTarget   string        `yaml:"conn_target" mapstructure:"conn_target"`
	MinIdle      int           `yaml:"min_idle" mapstructure:"min_idle"`
	SoftMax      int           `yaml:"soft_max" mapstructure:"soft_max"`
	HardMax      int           `yaml:"hard_max" mapstructure:"hard_max"`
	IdleTTL      time.Duration `yaml:"idle_ttl" mapstructure:"idle_ttl"`
	TraceDir     string        `yaml:"trace_dir" mapstructure:"trace_dir"`
	CatalogCache string        `yaml:"catalog_cache" mapstructure:"catalog_cache"`
}

// ToDomain converts a pool definition to the validated form the registry
// accepts.
func (p PoolConfig) ToDomain() *domain.PoolConfig {
	mode := domain.CatalogCacheMode(p.CatalogCache)
	if p.CatalogCache == "" {
		mode = domain.CatalogDisabled
	}
	return &domain.PoolConfig{
		Name:         p.Name,
		ConnTarget:   p.ConnTarget,
		MinIdle:      p.MinIdle,
		SoftMax:      p.SoftMax,
		HardMax:      p.HardMax,
		IdleTTL:      p.IdleTTL,
		TraceDir:     p.TraceDir,
		CatalogCache: mode,
	}
}

// DefaultConfig returns the built-in defaults, used when no config file is
// found.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Sweep: SweepConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Load reads the configuration from configPath, or searches the usual
// locations when configPath is empty. Environment variables with the PGCONN
// prefix override file values (e.g. PGCONN_SERVER_PORT).
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pgconnd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pgconnd")
	}

	v.SetEnvPrefix("PGCONN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file found; defaults and environment apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the daemon-level settings and every pool definition.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Sweep.Interval)
	}

	seen := make(map[string]string, len(c.Pools))
	for _, p := range c.Pools {
		dom := p.ToDomain()
		if err := dom.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(p.Name)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("duplicate pool name: %q conflicts with %q", p.Name, prev)
		}
		seen[key] = p.Name
	}
	return nil
}
