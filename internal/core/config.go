package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coregx/dbal/internal/dberr"
)

// PoolEntry describes one server of a master or slave pool. Empty fields are
// taken from the pool's shared entry.
type PoolEntry struct {
	DSN      string `yaml:"dsn"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Charset  string `yaml:"charset"`
}

// merge returns e with its empty fields filled from shared.
func (e PoolEntry) merge(shared PoolEntry) PoolEntry {
	if e.DSN == "" {
		e.DSN = shared.DSN
	}
	if e.Username == "" {
		e.Username = shared.Username
	}
	if e.Password == "" {
		e.Password = shared.Password
	}
	if e.Charset == "" {
		e.Charset = shared.Charset
	}
	return e
}

// Config holds the settings of a Connection. Use DefaultConfig or LoadConfig
// to start from the documented defaults.
type Config struct {
	// DSN carries the dialect prefix, e.g. "pgsql:host=localhost dbname=app"
	// or "sqlite::memory:".
	DSN         string `yaml:"dsn"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Charset     string `yaml:"charset"`
	TablePrefix string `yaml:"table_prefix"`

	Masters      []PoolEntry `yaml:"masters"`
	MasterConfig PoolEntry   `yaml:"master_config"`
	Slaves       []PoolEntry `yaml:"slaves"`
	SlaveConfig  PoolEntry   `yaml:"slave_config"`

	// ShuffleMasters randomizes master order before the failover scan.
	ShuffleMasters bool `yaml:"shuffle_masters"`
	EnableSlaves   bool `yaml:"enable_slaves"`
	// ServerRetryInterval is how long a failed server is skipped.
	ServerRetryInterval time.Duration `yaml:"server_retry_interval"`
	// ConnectTimeout bounds each connection attempt. Zero means no limit.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	EnableQueryCache   bool          `yaml:"enable_query_cache"`
	QueryCacheDuration time.Duration `yaml:"query_cache_duration"`

	EnableSchemaCache   bool          `yaml:"enable_schema_cache"`
	SchemaCacheDuration time.Duration `yaml:"schema_cache_duration"`
	SchemaCacheExclude  []string      `yaml:"schema_cache_exclude"`

	// ErrorCategories maps driver message substrings to execution error
	// categories. nil selects dberr.DefaultCategoryMap.
	ErrorCategories map[string]dberr.Category `yaml:"error_categories"`

	// DisableSavepoints makes nested transactions fail instead of using savepoints.
	DisableSavepoints bool `yaml:"disable_savepoints"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// StmtCacheCapacity bounds the prepared statement cache. Zero selects the
	// default capacity, a negative value disables statement caching.
	StmtCacheCapacity int `yaml:"stmt_cache_capacity"`
	// HealthCheckInterval enables periodic pings of the open handle.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// DefaultConfig returns a Config for dsn with the default settings.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:                 dsn,
		ShuffleMasters:      true,
		EnableSlaves:        true,
		ServerRetryInterval: 600 * time.Second,
		EnableQueryCache:    true,
		QueryCacheDuration:  time.Hour,
		SchemaCacheDuration: time.Hour,
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration document.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, dberr.Configuration("invalid config: %v", err)
	}
	return cfg, nil
}

// sub returns the configuration of a pool member: the pool entry merged with
// the shared entry, inheriting everything but the pools themselves.
func (c Config) sub(entry PoolEntry) Config {
	sub := c
	sub.DSN = entry.DSN
	sub.Username = entry.Username
	sub.Password = entry.Password
	sub.Charset = entry.Charset
	sub.Masters = nil
	sub.Slaves = nil
	sub.MasterConfig = PoolEntry{}
	sub.SlaveConfig = PoolEntry{}
	sub.HealthCheckInterval = 0
	return sub
}
