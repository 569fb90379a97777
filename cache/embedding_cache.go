package cache

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"
)

// EmbeddingCache stores query embeddings and guards per-user backfills.
// A nil or disconnected Redis turns every method into a no-op miss.
type EmbeddingCache struct {
	redis *RedisClient
}

// NewEmbeddingCache creates a new embedding cache instance
func NewEmbeddingCache(redis *RedisClient) *EmbeddingCache {
	return &EmbeddingCache{
		redis: redis,
	}
}

// GetQueryVector returns a cached embedding of text for model
func (c *EmbeddingCache) GetQueryVector(ctx context.Context, model, text string) ([]float32, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}

	var vec []float32
	if err := c.redis.Get(ctx, queryKey(model, text), &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

// SetQueryVector caches an embedding of text for model
func (c *EmbeddingCache) SetQueryVector(ctx context.Context, model, text string, vec []float32, ttl time.Duration) error {
	if c == nil || c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, queryKey(model, text), vec, ttl)
}

// AcquireBackfill claims the backfill slot of a user.
// Without Redis the claim always succeeds.
func (c *EmbeddingCache) AcquireBackfill(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	if c == nil || c.redis == nil {
		return true, nil
	}
	return c.redis.SetNX(ctx, backfillKey(userID), time.Now().Unix(), ttl)
}

// ReleaseBackfill frees the backfill slot of a user
func (c *EmbeddingCache) ReleaseBackfill(ctx context.Context, userID string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Delete(ctx, backfillKey(userID))
}

// GenerateDataHash creates a short hash used in cache keys
func GenerateDataHash(data string) string {
	hash := md5.Sum([]byte(data))
	return fmt.Sprintf("%x", hash[:8]) // Use first 8 bytes for shorter hash
}

func queryKey(model, text string) string {
	return fmt.Sprintf("embedding:query:%s:%s", model, GenerateDataHash(text))
}

func backfillKey(userID string) string {
	return fmt.Sprintf("embedding:backfill:%s", userID)
}
