package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
server:
  metrics_addr: ":9191"
http:
  timeout_seconds: 45
  requests_per_second: 5
fetch:
  batch_size: 25
  limit: 10
embedding:
  service_url: http://embedder:8000
  workers: 3
  text_enabled: true
storage:
  backend: gcs
  gcs_bucket: raw-bucket
db:
  dsn: postgres://localhost/catalog
sites_file: /etc/catalog/sites.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, ":9191", cfg.Server.MetricsAddr)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout())
	assert.InDelta(t, 5.0, cfg.HTTP.RequestsPerSecond, 1e-9)
	assert.Equal(t, 25, cfg.Fetch.BatchSize)
	assert.Equal(t, 10, cfg.Fetch.Limit)
	assert.Equal(t, 3, cfg.Embedding.Workers)
	assert.True(t, cfg.Embedding.TextEnabled)
	assert.Equal(t, 3, cfg.Embedding.MaxAttempts, "default kept")
	assert.Equal(t, StorageGCS, cfg.Storage.Backend)
	assert.Equal(t, "products", cfg.DB.Table)
	assert.Equal(t, DBPostgres, cfg.DB.StoreBackend())
	assert.Equal(t, "/etc/catalog/sites.yaml", cfg.SitesFile)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Fetch.BatchSize)
	assert.Equal(t, 0, cfg.Fetch.Limit)
	assert.Equal(t, 5, cfg.Embedding.Workers)
	assert.Equal(t, 100, cfg.DB.BatchSize)
	assert.Equal(t, StorageNone, cfg.Storage.Backend)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	t.Parallel()

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestStoreBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DBConfig
		want string
	}{
		{name: "no credentials", cfg: DBConfig{}, want: ""},
		{name: "dsn", cfg: DBConfig{DSN: "postgres://x"}, want: DBPostgres},
		{name: "supabase", cfg: DBConfig{SupabaseURL: "https://x.supabase.co", SupabaseKey: "k"}, want: DBSupabase},
		{name: "supabase missing key", cfg: DBConfig{SupabaseURL: "https://x.supabase.co"}, want: ""},
		{name: "explicit supabase wins over dsn", cfg: DBConfig{Backend: DBSupabase, DSN: "postgres://x", SupabaseURL: "u", SupabaseKey: "k"}, want: DBSupabase},
		{name: "explicit postgres without dsn", cfg: DBConfig{Backend: DBPostgres}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cfg.StoreBackend())
		})
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		HTTP:      HTTPConfig{TimeoutSeconds: 10},
		Fetch:     FetchConfig{BatchSize: 50},
		Embedding: EmbeddingConfig{Workers: 1, MaxAttempts: 3},
		DB:        DBConfig{BatchSize: 100},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "negative rate", mutate: func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, want: "http.requests_per_second"},
		{name: "headless missing max parallel", mutate: func(c *Config) { c.Headless.Enabled = true }, want: "headless.max_parallel"},
		{name: "invalid batch size", mutate: func(c *Config) { c.Fetch.BatchSize = 0 }, want: "fetch.batch_size"},
		{name: "negative limit", mutate: func(c *Config) { c.Fetch.Limit = -1 }, want: "fetch.limit"},
		{name: "no workers", mutate: func(c *Config) { c.Embedding.Workers = 0 }, want: "embedding.workers"},
		{name: "no attempts", mutate: func(c *Config) { c.Embedding.MaxAttempts = 0 }, want: "embedding.max_attempts"},
		{name: "db batch", mutate: func(c *Config) { c.DB.BatchSize = 0 }, want: "db.batch_size"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.gcs_bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = StorageLocal }, want: "storage.local_dir"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "unknown db", mutate: func(c *Config) { c.DB.Backend = "mysql" }, want: "db.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
