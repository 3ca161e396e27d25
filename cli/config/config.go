// Package config provides configuration management for the ledger CLI.
//
// The file is ledger.yaml. Loading goes through viper so that defaults,
// the file and LEDGER_* environment variables are merged; saving writes the
// struct back with yaml.v3.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "ledger.yaml"

// DefaultSQLiteFile is the database file used when a sqlite config names none.
const DefaultSQLiteFile = "ledger.db"

// EnvPrefix is the prefix of environment overrides, e.g. LEDGER_DATABASE_URL.
const EnvPrefix = "LEDGER"

// Drivers supported by database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Cache kinds supported by cache.kind.
const (
	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheRedis = "redis"
)

// Config represents the ledger CLI configuration.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version" mapstructure:"version"`

	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	EventStore  EventStoreConfig  `yaml:"event_store" mapstructure:"event_store"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Snapshots   SnapshotConfig    `yaml:"snapshots" mapstructure:"snapshots"`
	Projections ProjectionsConfig `yaml:"projections" mapstructure:"projections"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing" mapstructure:"tracing"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Driver is one of postgres, sqlite, mysql or memory.
	Driver string `yaml:"driver" mapstructure:"driver"`

	// URL is the connection string, or the file path for sqlite.
	URL string `yaml:"url,omitempty" mapstructure:"url"`

	// Schema qualifies tables on engines that support schemas.
	Schema string `yaml:"schema,omitempty" mapstructure:"schema"`

	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// EventStoreConfig contains event store settings.
type EventStoreConfig struct {
	// TableName for events
	TableName string `yaml:"table_name" mapstructure:"table_name"`
}

// CacheConfig selects the aggregate cache.
type CacheConfig struct {
	Kind      string        `yaml:"kind" mapstructure:"kind"`
	Size      int           `yaml:"size" mapstructure:"size"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RedisAddr string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
}

// SnapshotConfig controls the aggregate snapshot cadence.
type SnapshotConfig struct {
	// Every snapshots an aggregate each time its version crosses a multiple
	// of Every. Zero disables automatic snapshots.
	Every int64 `yaml:"every" mapstructure:"every"`
}

// ProjectionsConfig contains projection delivery settings.
type ProjectionsConfig struct {
	PageSize     int           `yaml:"page_size" mapstructure:"page_size"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Exporter string `yaml:"exporter" mapstructure:"exporter"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			URL:             DefaultSQLiteFile,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		EventStore: EventStoreConfig{
			TableName: "events",
		},
		Cache: CacheConfig{
			Kind: CacheLRU,
			Size: 1024,
			TTL:  5 * time.Minute,
		},
		Snapshots: SnapshotConfig{
			Every: 100,
		},
		Projections: ProjectionsConfig{
			PageSize:     100,
			PollInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "ledger",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("version", cfg.Version)
	v.SetDefault("database.driver", cfg.Database.Driver)
	// The file default depends on the driver; see applyDriverDefaults.
	v.SetDefault("database.url", "")
	v.SetDefault("database.schema", cfg.Database.Schema)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("event_store.table_name", cfg.EventStore.TableName)
	v.SetDefault("cache.kind", cfg.Cache.Kind)
	v.SetDefault("cache.size", cfg.Cache.Size)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("snapshots.every", cfg.Snapshots.Every)
	v.SetDefault("projections.page_size", cfg.Projections.PageSize)
	v.SetDefault("projections.poll_interval", cfg.Projections.PollInterval)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads the file at path over the defaults and applies LEDGER_*
// environment overrides. An empty path loads defaults and environment only.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ledger/config: failed to read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ledger/config: failed to decode %s: %w", path, err)
	}
	cfg.applyDriverDefaults()
	return &cfg, nil
}

// applyDriverDefaults fills settings whose default depends on the driver.
// Only sqlite has a default database URL.
func (c *Config) applyDriverDefaults() {
	if c.Database.Driver == DriverSQLite && c.Database.URL == "" {
		c.Database.URL = DefaultSQLiteFile
	}
}

// Save saves the configuration to the specified directory.
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile writes the configuration to path as YAML.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("ledger/config: failed to encode: %w", err)
	}
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}

const header = `# ledger configuration
# Every key can be overridden with LEDGER_<SECTION>_<KEY>, e.g. LEDGER_DATABASE_URL.

`

// Exists checks if a config file exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up.
// It returns the directory holding the file and the loaded configuration.
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		path := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, fmt.Errorf("ledger/config: %s not found: %w", ConfigFileName, os.ErrNotExist)
		}
		current = parent
	}
}

// IsNotFound reports whether err means no config file was found.
func IsNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Validate returns one message per invalid setting.
func (c *Config) Validate() []string {
	var problems []string

	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
		if c.Database.URL == "" {
			problems = append(problems, fmt.Sprintf("database.url is required for %s driver", c.Database.Driver))
		}
	case DriverSQLite:
		if c.Database.URL == "" {
			problems = append(problems, "database.url must name the sqlite file")
		}
	case DriverMemory:
	case "":
		problems = append(problems, "database.driver is required")
	default:
		problems = append(problems, "database.driver must be one of postgres, sqlite, mysql, memory")
	}
	if c.Database.Schema != "" && c.Database.Driver != DriverPostgres {
		problems = append(problems, "database.schema is only supported by the postgres driver")
	}

	if c.EventStore.TableName == "" {
		problems = append(problems, "event_store.table_name is required")
	}

	switch c.Cache.Kind {
	case CacheNone, CacheLRU, "":
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for redis cache")
		}
	default:
		problems = append(problems, "cache.kind must be one of none, lru, redis")
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl cannot be negative")
	}

	if c.Snapshots.Every < 0 {
		problems = append(problems, "snapshots.every cannot be negative")
	}
	if c.Projections.PageSize < 0 {
		problems = append(problems, "projections.page_size cannot be negative")
	}

	switch c.Log.Format {
	case "json", "console", "":
	default:
		problems = append(problems, "log.format must be json or console")
	}
	switch c.Tracing.Exporter {
	case "stdout", "none", "":
	default:
		problems = append(problems, "tracing.exporter must be stdout or none")
	}

	return problems
}
