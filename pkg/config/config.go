// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, RPC, Indexer, Search, Redis, Kafka, Source...).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Source    SourceConfig    `yaml:"source"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RPCConfig holds the search process's RPC listener and the address
// clients dial.
type RPCConfig struct {
	Addr        string        `yaml:"addr"`
	CallTimeout time.Duration `yaml:"callTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables every Kafka-backed component.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// Enabled reports whether any brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the query cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls how generations are built and persisted.
type IndexerConfig struct {
	Tokenizer     string `yaml:"tokenizer"`
	Workers       int    `yaml:"workers"`
	SnapshotDir   string `yaml:"snapshotDir"`
	KeepSnapshots int    `yaml:"keepSnapshots"`
	RestoreOnBoot bool   `yaml:"restoreOnBoot"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	Scorer               string        `yaml:"scorer"`
	DefaultLimit         int           `yaml:"defaultLimit"`
	MaxLimit             int           `yaml:"maxLimit"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxConcurrentQueries int           `yaml:"maxConcurrentQueries"`
}

// SourceConfig selects where the search process loads its initial corpus
// from. Driver is "postgres", "sqlite" or empty for none.
type SourceConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// StoreConfig selects the document store used for each indexing batch.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir"`
}

// RateLimitConfig configures the token bucket on the HTTP front.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML or TOML config file (if provided, chosen by extension)
// and applies environment-variable overrides. It returns a Config populated
// with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals data into cfg. TOML documents are re-encoded as YAML so
// both formats share one set of field tags and duration parsing.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var raw map[string]any
		if err := toml.Unmarshal(data, &raw); err != nil {
			return err
		}
		converted, err := yaml.Marshal(raw)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(converted, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.RPC.Addr == "" {
		errs = append(errs, errors.New("rpc.addr must be set"))
	}
	switch c.Indexer.Tokenizer {
	case "simple", "stemming", "bleve", "bleve-en":
	default:
		errs = append(errs, fmt.Errorf("indexer.tokenizer %q is not one of simple, stemming, bleve, bleve-en", c.Indexer.Tokenizer))
	}
	switch c.Search.Scorer {
	case "bm25", "tf":
	default:
		errs = append(errs, fmt.Errorf("search.scorer %q is not one of bm25, tf", c.Search.Scorer))
	}
	if c.Search.DefaultLimit <= 0 {
		errs = append(errs, errors.New("search.defaultLimit must be positive"))
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, errors.New("search.maxLimit must be at least search.defaultLimit"))
	}
	switch c.Source.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("source.driver %q is not one of postgres, sqlite", c.Source.Driver))
	}
	switch c.Store.Kind {
	case "memory":
	case "badger":
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store.dir must be set for the badger store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not one of memory, badger", c.Store.Kind))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rateLimit.requestsPerSecond must be positive when enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Addr:        "localhost:9400",
			CallTimeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchcore",
			User:            "searchcore",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "searchcore-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			Tokenizer:     "simple",
			Workers:       4,
			KeepSnapshots: 3,
		},
		Search: SearchConfig{
			Scorer:               "bm25",
			DefaultLimit:         10,
			MaxLimit:             100,
			Timeout:              5 * time.Second,
			MaxConcurrentQueries: 64,
		},
		Source: SourceConfig{
			Table: "documents",
		},
		Store: StoreConfig{
			Kind: "memory",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SC_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("SC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SC_INDEXER_TOKENIZER"); v != "" {
		cfg.Indexer.Tokenizer = v
	}
	if v := os.Getenv("SC_INDEXER_SNAPSHOT_DIR"); v != "" {
		cfg.Indexer.SnapshotDir = v
	}
	if v := os.Getenv("SC_SEARCH_SCORER"); v != "" {
		cfg.Search.Scorer = v
	}
	if v := os.Getenv("SC_SOURCE_DRIVER"); v != "" {
		cfg.Source.Driver = v
	}
	if v := os.Getenv("SC_SOURCE_DSN"); v != "" {
		cfg.Source.DSN = v
	}
	if v := os.Getenv("SC_STORE_KIND"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("SC_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("SC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
