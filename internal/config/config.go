// Package config provides configuration management for the stats indexer.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, STORAGE_DRIVER)
// 3. Default values
//
// Import Path: statsidx.io/statsidx/internal/config
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// Scheduler drivers.
const (
	SchedulerAuto   = "auto"
	SchedulerRiver  = "river"
	SchedulerTicker = "ticker"
	SchedulerNone   = "none"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	River     RiverConfig     `mapstructure:"river"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Security  SecurityConfig  `mapstructure:"security"`
	Indexes   []IndexConfig   `mapstructure:"indexes"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORS
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// The pool is shared by the postgres storage backend and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// SQLiteConfig contains the embedded database settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	ReindexWorkers              int           `mapstructure:"reindex_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	ReindexPoolSize int `mapstructure:"reindex_pool_size"`
}

// SchedulerConfig configures the changelog runner.
type SchedulerConfig struct {
	// Driver is auto, river, ticker or none. auto picks river on postgres
	// and ticker on sqlite.
	Driver            string        `mapstructure:"driver"`
	Interval          time.Duration `mapstructure:"interval"`
	DrainBatchSize    int           `mapstructure:"drain_batch_size"`
	MaxBatchesPerTick int           `mapstructure:"max_batches_per_tick"`
	Parallelism       int           `mapstructure:"parallelism"`
	// ImmediateFallback queues ids in the changelog when an immediate reindex fails.
	ImmediateFallback bool `mapstructure:"immediate_fallback"`
}

// EffectiveDriver resolves SchedulerAuto for the given storage driver.
func (c SchedulerConfig) EffectiveDriver(storageDriver string) string {
	if c.Driver != "" && c.Driver != SchedulerAuto {
		return c.Driver
	}
	if storageDriver == storage.DriverPostgres {
		return SchedulerRiver
	}
	return SchedulerTicker
}

// IndexerConfig tunes reindexing.
type IndexerConfig struct {
	FullBatchSize int `mapstructure:"full_batch_size"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	// AdminJWTKey is the HS256 key for admin bearer tokens. Empty disables
	// admin authentication.
	AdminJWTKey string `mapstructure:"admin_jwt_key"`
	// AdminIssuer is the expected "iss" claim.
	AdminIssuer string `mapstructure:"admin_issuer"`
	// AdminTokenTTL is the lifetime of tokens minted by statsctl admin-token.
	AdminTokenTTL time.Duration `mapstructure:"admin_token_ttl"`
}

// IndexConfig declares one logical index.
type IndexConfig struct {
	Name           string `mapstructure:"name"`
	SourceTable    string `mapstructure:"source_table"`
	IndexTable     string `mapstructure:"index_table"`
	ChangelogTable string `mapstructure:"changelog_table"`
	Mode           string `mapstructure:"mode"`
}

// Tables returns the physical tables of the index.
func (c IndexConfig) Tables() storage.Tables {
	return storage.Tables{Source: c.SourceTable, Index: c.IndexTable, Changelog: c.ChangelogTable}
}

// DefaultIndex is the product stats index used when none is configured.
var DefaultIndex = IndexConfig{
	Name:           "product_stats",
	SourceTable:    "product_stats",
	IndexTable:     "product_stats_idx",
	ChangelogTable: "product_stats_cl",
	Mode:           string(domain.ModeImmediate),
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from the default search paths and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// ".", "./config" and "/etc/statsidx".
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/statsidx")
	}

	// No prefix: maps nested config, e.g. scheduler.interval → SCHEDULER_INTERVAL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Indexes) == 0 {
		cfg.Indexes = []IndexConfig{DefaultIndex}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Security.AdminJWTKey == "" {
		logBootstrapWarn("security.admin_jwt_key is empty; admin API is unauthenticated")
	}
	return &cfg, nil
}

// Validate checks for configuration errors. All failures are of kind
// ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return invalid("sqlite.path must not be empty")
		}
	case storage.DriverPostgres:
	default:
		return invalid(fmt.Sprintf("storage.driver %q must be sqlite or postgres", c.Storage.Driver))
	}

	switch c.Scheduler.Driver {
	case "", SchedulerAuto, SchedulerTicker, SchedulerNone:
	case SchedulerRiver:
		if c.Storage.Driver != storage.DriverPostgres {
			return invalid("scheduler.driver river requires storage.driver postgres")
		}
	default:
		return invalid(fmt.Sprintf("unknown scheduler.driver %q", c.Scheduler.Driver))
	}
	if c.Scheduler.EffectiveDriver(c.Storage.Driver) != SchedulerNone && c.Scheduler.Interval <= 0 {
		return invalid("scheduler.interval must be positive")
	}

	if key := c.Security.AdminJWTKey; key != "" && len(key) < 32 {
		return invalid("security.admin_jwt_key must be at least 32 characters")
	}

	if len(c.Indexes) == 0 {
		return invalid("at least one index must be configured")
	}
	names := make(map[string]struct{}, len(c.Indexes))
	tables := make(map[string]string)
	for _, idx := range c.Indexes {
		if strings.TrimSpace(idx.Name) == "" {
			return invalid("indexes[].name must not be empty")
		}
		if _, dup := names[idx.Name]; dup {
			return invalid(fmt.Sprintf("index %q configured twice", idx.Name))
		}
		names[idx.Name] = struct{}{}

		if err := idx.Tables().Validate(); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name, err)
		}
		for _, tbl := range []string{idx.SourceTable, idx.IndexTable, idx.ChangelogTable} {
			if owner, taken := tables[tbl]; taken {
				return invalid(fmt.Sprintf("table %q used by both %s and %s", tbl, owner, idx.Name))
			}
			tables[tbl] = idx.Name
		}
		if idx.Mode != "" {
			if _, err := domain.ParseMode(idx.Mode); err != nil {
				return fmt.Errorf("index %s: %w", idx.Name, err)
			}
		}
	}
	return nil
}

func invalid(msg string) error {
	return apperrors.Configuration(apperrors.CodeValidationFailed, msg)
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", false)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "statsidx")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "statsidx")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// Storage
	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("sqlite.path", "./data/statsidx.db")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.reindex_workers", 2)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.reindex_pool_size", 4)

	// Scheduler
	v.SetDefault("scheduler.driver", SchedulerAuto)
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.drain_batch_size", 500)
	v.SetDefault("scheduler.max_batches_per_tick", 20)
	v.SetDefault("scheduler.parallelism", 4)
	v.SetDefault("scheduler.immediate_fallback", true)

	// Indexer
	v.SetDefault("indexer.full_batch_size", 1000)

	// Security
	v.SetDefault("security.admin_jwt_key", "")
	v.SetDefault("security.admin_issuer", "statsidx")
	v.SetDefault("security.admin_token_ttl", "12h")
}
