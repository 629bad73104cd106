package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FINETUNEDB_API_KEY", "")
	t.Setenv("FINETUNEDB_BASE_URL", "")
	t.Setenv("DEAD_LETTER_BACKEND", "")
	t.Setenv("DATABASE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Client.Enabled())
	assert.Equal(t, DefaultBaseURL, cfg.Client.BaseURL)
	assert.Equal(t, 20, cfg.Client.ChunkSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, DeadLetterMemory, cfg.DeadLetter.Backend)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FINETUNEDB_API_KEY", "sk-test")
	t.Setenv("FINETUNEDB_PROJECT_ID", "proj-1")
	t.Setenv("FINETUNEDB_BASE_URL", "http://localhost:8080/api/v1/")
	t.Setenv("FINETUNEDB_CHUNK_SIZE", "5")
	t.Setenv("FINETUNEDB_DEBOUNCE", "50ms")
	t.Setenv("DEAD_LETTER_BACKEND", "Redis")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Client.Enabled())
	assert.Equal(t, "proj-1", cfg.Client.ProjectID)
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.Client.BaseURL)
	assert.Equal(t, 5, cfg.Client.ChunkSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Client.Debounce)
	assert.Equal(t, DeadLetterRedis, cfg.DeadLetter.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 0, cfg.Redis.DB, "malformed ints fall back to the default")
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Run("dead letter backend", func(t *testing.T) {
		t.Setenv("DEAD_LETTER_BACKEND", "kafka")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		t.Setenv("DEAD_LETTER_BACKEND", "s3")
		t.Setenv("DEAD_LETTER_S3_BUCKET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("database driver", func(t *testing.T) {
		t.Setenv("DEAD_LETTER_BACKEND", "")
		t.Setenv("DATABASE_DRIVER", "mysql")
		_, err := Load()
		assert.Error(t, err)
	})
}
