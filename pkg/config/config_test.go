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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "simple", cfg.Indexer.Tokenizer)
	assert.Equal(t, "bm25", cfg.Search.Scorer)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "searchcore.yaml", `
server:
  port: 9000
indexer:
  tokenizer: stemming
search:
  scorer: tf
  timeout: 2s
redis:
  addr: localhost:6379
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "stemming", cfg.Indexer.Tokenizer)
	assert.Equal(t, "tf", cfg.Search.Scorer)
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "searchcore.toml", `
[server]
port = 9100

[search]
scorer = "bm25"
timeout = "750ms"
maxLimit = 50

[kafka]
brokers = ["k1:9092", "k2:9092"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.Timeout)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SC_SERVER_PORT", "7070")
	t.Setenv("SC_INDEXER_TOKENIZER", "bleve")
	t.Setenv("SC_KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "bleve", cfg.Indexer.Tokenizer)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
indexer:
  tokenizer: snowball
search:
  scorer: pagerank
store:
  kind: badger
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer.tokenizer")
	assert.Contains(t, err.Error(), "search.scorer")
	assert.Contains(t, err.Error(), "store.dir")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
