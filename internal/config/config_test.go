package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EMBED_BATCH_SIZE", "")
	t.Setenv("PIPELINE_STALE_LOCK", "")

	cfg := Load()
	assert.Equal(t, 50, cfg.Knowledge.EmbedBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Knowledge.StaleLockAfter)
	assert.Equal(t, 0.5, cfg.Knowledge.DefaultMinSimilarity)
	assert.Equal(t, "llm", cfg.Knowledge.CollectionPrefix)
	assert.Equal(t, 25, cfg.Thread.HistoryLimit)
	assert.Equal(t, 7*24*time.Hour, cfg.Jobs.CleanupAge)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EMBED_BATCH_SIZE", "10")
	t.Setenv("PIPELINE_STALE_LOCK", "90s")
	t.Setenv("SEARCH_MIN_SIMILARITY", "0.25")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("GO_ENV", "production")

	cfg := Load()
	assert.Equal(t, 10, cfg.Knowledge.EmbedBatchSize)
	assert.Equal(t, 90*time.Second, cfg.Knowledge.StaleLockAfter)
	assert.Equal(t, 0.25, cfg.Knowledge.DefaultMinSimilarity)
	assert.False(t, cfg.Jobs.SchedulerEnabled)
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvHelpers_InvalidFallback(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	assert.Equal(t, 3, getEnvAsInt("X_INT", 3))
	assert.Equal(t, time.Second, getEnvAsDuration("X_DUR", time.Second))
}
