package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDataHash(t *testing.T) {
	a := GenerateDataHash("ES long")
	assert.Len(t, a, 16)
	assert.Equal(t, a, GenerateDataHash("ES long"))
	assert.NotEqual(t, a, GenerateDataHash("ES short"))
}

func TestEmbeddingCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(nil)

	_, ok := c.GetQueryVector(ctx, "m", "q")
	assert.False(t, ok)
	assert.Error(t, c.SetQueryVector(ctx, "m", "q", []float32{1}, time.Minute))

	acquired, err := c.AcquireBackfill(ctx, "user-1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, c.ReleaseBackfill(ctx, "user-1"))
}

func TestKeysAreNamespaced(t *testing.T) {
	assert.Equal(t, "embedding:backfill:u1", backfillKey("u1"))
	assert.Contains(t, queryKey("text-embedding-3-small", "q"), "embedding:query:text-embedding-3-small:")
}
