// Package config provides YAML configuration support for the stub resolver.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/piwi3910/dns-stub/pkg/resolvconf"
)

// Configuration errors.
var (
	ErrConfigNotFound   = errors.New("configuration file not found")
	ErrNoRetryBound     = errors.New("at least one of lifetime or max_attempts must be set")
	ErrInvalidServer    = errors.New("invalid nameserver address")
	ErrNegativeDuration = errors.New("duration must not be negative")
	ErrNegativeAttempts = errors.New("max_attempts must not be negative")
)

// Config represents the complete stub resolver configuration.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ResolverConfig holds resolution-related configuration.
type ResolverConfig struct {
	// Servers is the ordered list of nameservers (IP or IP:port). When
	// empty, servers are loaded from ResolvConf instead.
	Servers []string `yaml:"servers"`

	// ResolvConf is the resolv.conf path used when Servers is empty
	ResolvConf string `yaml:"resolv_conf"`

	// Timeout is the per-attempt query timeout
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts is the number of full passes over the server list per
	// question (0 disables the ceiling)
	MaxAttempts int `yaml:"max_attempts"`

	// Lifetime is the wall-clock budget for a whole batch (0 disables it)
	Lifetime time.Duration `yaml:"lifetime"`

	// Shuffle randomizes the server order once at startup
	Shuffle bool `yaml:"shuffle"`
}

// APIConfig holds lookup API configuration.
type APIConfig struct {
	// ListenAddress is the address the HTTP API listens on
	ListenAddress string `yaml:"listen_address"`

	// CORSOrigins is the list of allowed CORS origins
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	// EnableQueryLog enables logging of every lookup served by the API
	EnableQueryLog bool `yaml:"enable_query_log"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Servers:     nil,
			ResolvConf:  resolvconf.DefaultPath,
			Timeout:     1 * time.Second,
			MaxAttempts: 5,
			Lifetime:    15 * time.Second,
			Shuffle:     false,
		},
		API: APIConfig{
			ListenAddress: ":8085",
			CORSOrigins:   []string{"*"},
		},
		Logging: LoggingConfig{
			EnableQueryLog: false,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFileOrDefault loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration without error.
func LoadFromFileOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return DefaultConfig(), nil
		}

		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Resolver.Lifetime == 0 && c.Resolver.MaxAttempts == 0 {
		return ErrNoRetryBound
	}
	if c.Resolver.Timeout < 0 || c.Resolver.Lifetime < 0 {
		return ErrNegativeDuration
	}
	if c.Resolver.MaxAttempts < 0 {
		return ErrNegativeAttempts
	}

	for _, server := range c.Resolver.Servers {
		if _, ok := resolvconf.Normalize(server); !ok {
			return fmt.Errorf("%w: %s", ErrInvalidServer, server)
		}
	}

	return nil
}

// Servers resolves the effective nameserver list: the configured servers in
// normalized form, or the ResolvConf file's entries when none are set.
func (c *Config) Servers() []string {
	if len(c.Resolver.Servers) == 0 {
		return resolvconf.Load(c.Resolver.ResolvConf)
	}

	servers := make([]string, 0, len(c.Resolver.Servers))
	for _, server := range c.Resolver.Servers {
		if addr, ok := resolvconf.Normalize(server); ok {
			servers = append(servers, addr)
		}
	}

	return servers
}

// SaveToFile saves the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
