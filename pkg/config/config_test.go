package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 3, cfg.Search.MinQueryLength)
	assert.Equal(t, "index", cfg.Search.Strategy)
	assert.InDelta(t, 1.2, cfg.Search.K1, 1e-9)
	assert.InDelta(t, 0.75, cfg.Search.B, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.Feedback.IssuedTTL)
	assert.Equal(t, "analytics-events", cfg.Kafka.Topics.AnalyticsEvents)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9000
search:
  maxResults: 5
  strategy: scan
corpus:
  source: file
  path: /data/laws.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, "scan", cfg.Search.Strategy)
	assert.Equal(t, "/data/laws.yaml", cfg.Corpus.Path)
	assert.Equal(t, 3, cfg.Search.MinQueryLength)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 9000\n")
	t.Setenv("SP_SERVER_PORT", "7000")
	t.Setenv("SP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SP_SEARCH_STRATEGY", "scan")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "scan", cfg.Search.Strategy)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Search.Strategy = "vector" }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"postgres corpus without postgres", func(c *Config) { c.Corpus.Source = "postgres" }},
		{"file corpus without path", func(c *Config) { c.Corpus.Path = "" }},
		{"redis registry without redis", func(c *Config) { c.Feedback.Registry = "redis" }},
		{"postgres feedback without postgres", func(c *Config) { c.Feedback.Store = "postgres" }},
		{"max below min query length", func(c *Config) { c.Search.MaxQueryLength = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaultConfig().Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "laws", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=laws sslmode=disable", p.DSN())
}
