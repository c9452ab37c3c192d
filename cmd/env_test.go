package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/lifecycle"
	"github.com/sells-group/lead-engine/internal/model"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cmd.db")},
		Ingest: config.IngestConfig{DefaultRegion: "Texas"},
		Paging: config.PagingConfig{DefaultLimit: 50, MaxLimit: 500},
		Embeddings: config.EmbeddingsConfig{
			BatchSize: 100, MaxBatches: 50, ExecutionCeilingSecs: 600, SafetyMarginSecs: 60,
		},
	}
}

func TestInitEnv_SQLite(t *testing.T) {
	withConfig(t, sqliteConfig(t))
	ctx := context.Background()

	env, err := initEnv(ctx, "cli")
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.Service.Ping(ctx))
	lead, err := env.Service.Ingest.Create(ctx, &model.LeadPayload{Title: "Stadium seating"})
	require.NoError(t, err)
	assert.Equal(t, "Texas", lead.Location.Region)
}

func TestInitEnv_ValidationFails(t *testing.T) {
	c := sqliteConfig(t)
	c.Store.Driver = "mongo"
	withConfig(t, c)

	_, err := initEnv(context.Background(), "cli")
	assert.Error(t, err)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mongo"}})
	_, err := initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestNewHunter(t *testing.T) {
	c := sqliteConfig(t)
	c.Anthropic = config.AnthropicConfig{Key: "test", Model: "claude-haiku-4-5", MaxTokens: 1024, RequestsPerMinute: 10}
	withConfig(t, c)

	env, err := initEnv(context.Background(), "hunt")
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, newHunter(env))
}

func TestWriteReport(t *testing.T) {
	report := &lifecycle.Report{TotalChecked: 3, Deleted: 1}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", report))
	assert.Contains(t, buf.String(), `"totalChecked": 3`)

	buf.Reset()
	require.NoError(t, writeReport(&buf, "yaml", report))
	assert.Contains(t, buf.String(), "totalChecked: 3")
	assert.Contains(t, buf.String(), "deleted: 1")

	assert.Error(t, writeReport(&buf, "xml", report))
}

func TestClearOutput_YAMLInlinesResult(t *testing.T) {
	out := clearOutput{NextCursor: "abc"}
	out.ClearedCount = 4

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "yaml", out))
	assert.Contains(t, buf.String(), "clearedCount: 4")
	assert.Contains(t, buf.String(), "nextCursor: abc")
}
