// Package config loads and validates ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends for the raw payload archive.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Row store backends.
const (
	DBPostgres = "postgres"
	DBSupabase = "supabase"
)

// Config captures all ingest configuration knobs loaded via Viper.
type Config struct {
	Logging        LoggingConfig   `mapstructure:"logging"`
	Server         ServerConfig    `mapstructure:"server"`
	HTTP           HTTPConfig      `mapstructure:"http"`
	Headless       HeadlessConfig  `mapstructure:"headless"`
	Fetch          FetchConfig     `mapstructure:"fetch"`
	Embedding      EmbeddingConfig `mapstructure:"embedding"`
	Storage        StorageConfig   `mapstructure:"storage"`
	DB             DBConfig        `mapstructure:"db"`
	PubSub         PubSubConfig    `mapstructure:"pubsub"`
	SitesFile      string          `mapstructure:"sites_file"`
	CategoriesFile string          `mapstructure:"categories_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the ops HTTP server. An empty address disables it.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// HTTPConfig configures the JSON API client.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	MaxBodyBytes      int     `mapstructure:"max_body_bytes"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// HeadlessConfig configures the rendered-page discovery strategy.
type HeadlessConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxParallel    int  `mapstructure:"max_parallel"`
	NavTimeoutSec  int  `mapstructure:"nav_timeout_seconds"`
	IdleTimeoutSec int  `mapstructure:"idle_timeout_seconds"`
}

// FetchConfig drives batch sizing and the global item limit (0 = unlimited).
type FetchConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	Limit     int `mapstructure:"limit"`
}

// EmbeddingConfig points at the inference service and sizes the worker pool.
type EmbeddingConfig struct {
	ServiceURL     string `mapstructure:"service_url"`
	Workers        int    `mapstructure:"workers"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
	InputSize      int    `mapstructure:"input_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	TextEnabled    bool   `mapstructure:"text_enabled"`
}

// StorageConfig selects where raw batch payloads are archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the row store.
type DBConfig struct {
	Backend             string `mapstructure:"backend"`
	DSN                 string `mapstructure:"dsn"`
	Table               string `mapstructure:"table"`
	BatchSize           int    `mapstructure:"batch_size"`
	MaxConns            int32  `mapstructure:"max_conns"`
	StatementTimeoutSec int    `mapstructure:"statement_timeout_seconds"`
	SupabaseURL         string `mapstructure:"supabase_url"`
	SupabaseKey         string `mapstructure:"supabase_key"`
}

// PubSubConfig holds metadata for run-summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is loaded first when present; it never overrides real env vars.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// Credentials commonly live under their unprefixed names.
	_ = v.BindEnv("db.supabase_url", "CATALOG_DB_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("db.supabase_key", "CATALOG_DB_SUPABASE_KEY", "SUPABASE_KEY")
	_ = v.BindEnv("db.dsn", "CATALOG_DB_DSN", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv loads the given env files, ignoring ones that do not exist.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.idle_timeout_seconds", 10)
	v.SetDefault("fetch.batch_size", 50)
	v.SetDefault("fetch.limit", 0)
	v.SetDefault("embedding.service_url", "")
	v.SetDefault("embedding.workers", 5)
	v.SetDefault("embedding.max_attempts", 3)
	v.SetDefault("embedding.backoff_base_ms", 1000)
	v.SetDefault("embedding.input_size", 384)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.text_enabled", false)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("db.backend", "")
	v.SetDefault("db.table", "products")
	v.SetDefault("db.batch_size", 100)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.statement_timeout_seconds", 30)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("sites_file", "sites.yaml")
	v.SetDefault("categories_file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Fetch.BatchSize <= 0 {
		return fmt.Errorf("fetch.batch_size must be > 0")
	}
	if c.Fetch.Limit < 0 {
		return fmt.Errorf("fetch.limit must be >= 0")
	}
	if c.Embedding.Workers <= 0 {
		return fmt.Errorf("embedding.workers must be > 0")
	}
	if c.Embedding.MaxAttempts <= 0 {
		return fmt.Errorf("embedding.max_attempts must be > 0")
	}
	if c.DB.BatchSize <= 0 {
		return fmt.Errorf("db.batch_size must be > 0")
	}
	switch c.Storage.Backend {
	case "", StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.DB.Backend {
	case "", DBPostgres, DBSupabase:
	default:
		return fmt.Errorf("db.backend %q is not supported", c.DB.Backend)
	}
	return nil
}

// StoreBackend resolves which row store to use. An empty result means
// persistence is disabled because no credentials are configured.
func (c DBConfig) StoreBackend() string {
	switch c.Backend {
	case DBPostgres:
		if c.DSN == "" {
			return ""
		}
		return DBPostgres
	case DBSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return ""
		}
		return DBSupabase
	}
	if c.DSN != "" {
		return DBPostgres
	}
	if c.SupabaseURL != "" && c.SupabaseKey != "" {
		return DBSupabase
	}
	return ""
}

// HTTPTimeout converts the HTTP timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
