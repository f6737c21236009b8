// Package config provides configuration management for the user registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/overlaykit/userdir/pkg/errors"
)

// ClientCredential describes one API client allowed to request tokens.
// The secret is stored as a bcrypt hash, never in the clear.
type ClientCredential struct {
	ID         string `yaml:"id" json:"id" mapstructure:"id" validate:"required"`
	SecretHash string `yaml:"secret_hash" json:"secret_hash" mapstructure:"secret_hash" validate:"required"`
	Role       string `yaml:"role" json:"role" mapstructure:"role" validate:"required,oneof=viewer editor"`
}

// ServerConfig represents the HTTP boundary configuration
type ServerConfig struct {
	Host         string             `yaml:"host" json:"host" mapstructure:"host" validate:"required"`
	Port         int                `yaml:"port" json:"port" mapstructure:"port" validate:"required,gt=0"`
	CORSEnabled  bool               `yaml:"cors_enabled" json:"cors_enabled" mapstructure:"cors_enabled"`
	CORSOrigins  []string           `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty" mapstructure:"cors_origins"`
	ReadTimeout  time.Duration      `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty" mapstructure:"read_timeout"`
	WriteTimeout time.Duration      `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty" mapstructure:"write_timeout"`
	JWTSecret    string             `yaml:"jwt_secret,omitempty" json:"jwt_secret,omitempty" mapstructure:"jwt_secret" validate:"omitempty,min=16"`
	TokenTTL     time.Duration      `yaml:"token_ttl,omitempty" json:"token_ttl,omitempty" mapstructure:"token_ttl"`
	Clients      []ClientCredential `yaml:"clients,omitempty" json:"clients,omitempty" mapstructure:"clients" validate:"dive"`
}

// NewServerConfig creates a new server configuration with defaults
func NewServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		CORSEnabled:  true,
		CORSOrigins:  []string{"*"},
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		TokenTTL:     time.Hour,
	}
}

// RemoteConfig represents the upstream catalog client configuration
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url" json:"base_url" mapstructure:"base_url" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts" validate:"gte=0,lte=10"`
	RetryBackoff  time.Duration `yaml:"retry_backoff,omitempty" json:"retry_backoff,omitempty" mapstructure:"retry_backoff"`
	RetryMaxWait  time.Duration `yaml:"retry_max_wait,omitempty" json:"retry_max_wait,omitempty" mapstructure:"retry_max_wait"`
}

// NewRemoteConfig creates a new remote catalog configuration with defaults
func NewRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:       "https://jsonplaceholder.typicode.com",
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
		RetryMaxWait:  5 * time.Second,
	}
}

// StoreConfig represents the overlay store configuration
type StoreConfig struct {
	Driver        string `yaml:"driver" json:"driver" mapstructure:"driver" validate:"required,oneof=sqlite redis"`
	SQLitePath    string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty" mapstructure:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty" json:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty" mapstructure:"redis_db"`
}

// NewStoreConfig creates a new store configuration with defaults
func NewStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:     "sqlite",
		SQLitePath: "userdir.db",
		RedisAddr:  "localhost:6379",
	}
}

// AuditConfig represents the audit trail configuration
type AuditConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// MetricsConfig represents the in-process instrumentation configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// AllocatorConfig represents the identity allocator configuration
type AllocatorConfig struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=16"`
}

// NewAllocatorConfig creates a new allocator configuration with defaults
func NewAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{MaxAttempts: 3}
}

// Config is the top-level configuration for the service
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server" mapstructure:"server"`
	Remote    RemoteConfig    `yaml:"remote" json:"remote" mapstructure:"remote"`
	Store     StoreConfig     `yaml:"store" json:"store" mapstructure:"store"`
	Allocator AllocatorConfig `yaml:"allocator" json:"allocator" mapstructure:"allocator"`
	Audit     AuditConfig     `yaml:"audit" json:"audit" mapstructure:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	LogLevel  string          `yaml:"log_level,omitempty" json:"log_level,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		Server:    NewServerConfig(),
		Remote:    NewRemoteConfig(),
		Store:     NewStoreConfig(),
		Allocator: NewAllocatorConfig(),
		Metrics:   MetricsConfig{Enabled: true},
		LogLevel:  "info",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.NewConfigInvalidError(err.Error())
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.NewConfigInvalidError("store.sqlite_path is required for the sqlite driver")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.NewConfigInvalidError("store.redis_addr is required for the redis driver")
		}
	}

	if len(c.Server.Clients) > 0 && c.Server.JWTSecret == "" {
		return errors.NewConfigInvalidError("server.jwt_secret is required when API clients are configured")
	}

	return nil
}

// FromYAMLFile loads configuration from a YAML file over the defaults
func (c *Config) FromYAMLFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return v.Unmarshal(c)
}

// FromJSONFile loads configuration from a JSON file over the defaults
func (c *Config) FromJSONFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return v.Unmarshal(c)
}

// ToYAMLFile saves configuration to a YAML file
func (c *Config) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnvOverrides overlays USERDIR_* environment variables onto the
// configuration. Only the operationally interesting keys are mapped.
func (c *Config) ApplyEnvOverrides() {
	v := LoadFromEnv("USERDIR")

	if s := v.GetString("server.host"); s != "" {
		c.Server.Host = s
	}
	if p := v.GetInt("server.port"); p != 0 {
		c.Server.Port = p
	}
	if s := v.GetString("server.jwt_secret"); s != "" {
		c.Server.JWTSecret = s
	}
	if s := v.GetString("remote.base_url"); s != "" {
		c.Remote.BaseURL = s
	}
	if s := v.GetString("store.driver"); s != "" {
		c.Store.Driver = s
	}
	if s := v.GetString("store.sqlite_path"); s != "" {
		c.Store.SQLitePath = s
	}
	if s := v.GetString("store.redis_addr"); s != "" {
		c.Store.RedisAddr = s
	}
	if s := v.GetString("log_level"); s != "" {
		c.LogLevel = s
	}
}

// Load builds the effective configuration: defaults, then the optional
// file, then environment overrides, validated as a whole.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.NewConfigNotFoundError(path)
		}

		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = cfg.FromJSONFile(path)
		default:
			err = cfg.FromYAMLFile(path)
		}
		if err != nil {
			return nil, errors.NewConfigError(err.Error())
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Watch re-reads the file whenever it changes and hands the freshly parsed
// configuration to the callback. Invalid updates are dropped.
func (c *Config) Watch(path string, callback func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated := NewConfig()
		if err := v.Unmarshal(updated); err != nil {
			return
		}
		if err := updated.Validate(); err != nil {
			return
		}
		callback(updated)
	})
	v.WatchConfig()

	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}
