// Package config loads the Hera configuration with viper. Values come from
// config.yaml in the configuration directory, overridden by HERA_*
// environment variables (HERA_BACKEND_DRIVER for backend.driver).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/hera/internal/paths"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Backend drivers.
const (
	DriverSQLite   = types.BackendSQLite
	DriverPostgres = types.BackendPostgres
	DriverHTTP     = "http"
)

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config keys.
const (
	KeyBackendDriver  = "backend.driver"
	KeyBackendDataDir = "backend.data_dir"
	KeyBackendDSN     = "backend.dsn"
	KeyBackendURL     = "backend.url"
	KeyCacheDriver    = "cache.driver"
	KeyCacheRedisAddr = "cache.redis_addr"
	KeyCacheRedisDB   = "cache.redis_db"
	KeyCacheTTL       = "cache.ttl"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyServerAddr     = "server.addr"
	KeyEventsNATSURL  = "events.nats_url"
	KeyPresetsDir     = "presets.dir"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HERA"

// Config validation errors.
var (
	ErrUnknownDriver      = errors.New("unknown backend driver")
	ErrURLRequired        = errors.New("http backend requires backend.url")
	ErrUnknownCacheDriver = errors.New("unknown cache driver")
	ErrRedisAddrRequired  = errors.New("redis cache requires cache.redis_addr")
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Hera configuration. Every key can be overridden with an environment
# variable, e.g. HERA_BACKEND_DRIVER or HERA_LOG_LEVEL.

backend:
  driver: sqlite        # sqlite | postgres | http
  # data_dir:           # sqlite data directory (default: $(CWD)/.hera)
  # dsn:                # postgres connection string
  # url:                # base URL of a remote hera server

cache:
  driver: memory        # memory | redis
  # redis_addr: localhost:6379
  # redis_db: 0
  # ttl: 0s

log:
  level: info
  format: console

server:
  addr: ":8080"

# events:
#   nats_url: nats://localhost:4222

# presets:
#   dir:                # extra preset YAML files
`

// Config is the resolved configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Events  EventsConfig  `mapstructure:"events"`
	Presets PresetsConfig `mapstructure:"presets"`
}

// BackendConfig selects where entities live.
type BackendConfig struct {
	Driver  string `mapstructure:"driver"`
	DataDir string `mapstructure:"data_dir"`
	DSN     string `mapstructure:"dsn"`
	URL     string `mapstructure:"url"`
}

// CacheConfig selects the read-model cache.
type CacheConfig struct {
	Driver    string        `mapstructure:"driver"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// EventsConfig configures change-event publishing. An empty URL disables it.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
}

// PresetsConfig locates extra preset files.
type PresetsConfig struct {
	Dir string `mapstructure:"dir"`
}

// New returns a viper instance with defaults and environment overrides but
// no file.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBackendDriver, DriverSQLite)
	v.SetDefault(KeyBackendDataDir, "")
	v.SetDefault(KeyBackendDSN, "")
	v.SetDefault(KeyBackendURL, "")
	v.SetDefault(KeyCacheDriver, CacheMemory)
	v.SetDefault(KeyCacheRedisAddr, "")
	v.SetDefault(KeyCacheRedisDB, 0)
	v.SetDefault(KeyCacheTTL, time.Duration(0))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyEventsNATSURL, "")
	v.SetDefault(KeyPresetsDir, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads config.yaml from configDir. The directory and a default file
// are created on first run; a missing file is not an error.
func Load(configDir string) (*Config, error) {
	if err := EnsureDefaultFile(configDir); err != nil {
		return nil, err
	}
	v := New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureDefaultFile creates configDir and writes the default config.yaml
// when none exists.
func EnsureDefaultFile(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// Validate checks drivers and their required settings.
func (c *Config) Validate() error {
	switch c.Backend.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Backend.DSN == "" {
			return types.ErrDSNRequired
		}
	case DriverHTTP:
		if c.Backend.URL == "" {
			return ErrURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Backend.Driver)
	}
	switch c.Cache.Driver {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return ErrRedisAddrRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCacheDriver, c.Cache.Driver)
	}
	return nil
}

// Store returns the SQL store configuration. dataDir replaces the
// configured data directory when non-empty.
func (c *Config) Store(dataDir string) types.Config {
	if dataDir == "" {
		dataDir = c.Backend.DataDir
	}
	return types.Config{Backend: c.Backend.Driver, DataDir: dataDir, DSN: c.Backend.DSN}
}
