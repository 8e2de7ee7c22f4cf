package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EmbeddingCacheStore = (*EmbeddingCacheStore)(nil)
var _ driven.ResponseCacheStore = (*ResponseCacheStore)(nil)

const (
	embeddingKeyPrefix = "cache:embedding:"
	responseKeyPrefix  = "cache:response:"
)

// EmbeddingCacheStore implements driven.EmbeddingCacheStore using Redis.
// TTL is enforced by Redis itself rather than an expires_at column,
// letting Redis expire keys instead of requiring a periodic sweep.
type EmbeddingCacheStore struct {
	client *redis.Client
}

func NewEmbeddingCacheStore(client *redis.Client) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{client: client}
}

func (s *EmbeddingCacheStore) Get(ctx context.Context, textDigest string) ([]float32, bool, error) {
	data, err := s.client.Get(ctx, embeddingKeyPrefix+textDigest).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get embedding cache entry: %w", err)
	}
	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal embedding cache entry: %w", err)
	}
	return embedding, true, nil
}

func (s *EmbeddingCacheStore) Set(ctx context.Context, entry domain.EmbeddingCacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry.Embedding)
	if err != nil {
		return fmt.Errorf("redis: marshal embedding cache entry: %w", err)
	}
	if err := s.client.Set(ctx, embeddingKeyPrefix+entry.TextDigest, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set embedding cache entry: %w", err)
	}
	return nil
}

func (s *EmbeddingCacheStore) Count(ctx context.Context) (int, error) {
	return countKeys(ctx, s.client, embeddingKeyPrefix+"*")
}

// ResponseCacheStore implements driven.ResponseCacheStore using Redis.
type ResponseCacheStore struct {
	client *redis.Client
}

func NewResponseCacheStore(client *redis.Client) *ResponseCacheStore {
	return &ResponseCacheStore{client: client}
}

func (s *ResponseCacheStore) Get(ctx context.Context, questionDigest string) (string, bool, error) {
	answer, err := s.client.Get(ctx, responseKeyPrefix+questionDigest).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get response cache entry: %w", err)
	}
	return answer, true, nil
}

func (s *ResponseCacheStore) Set(ctx context.Context, entry domain.ResponseCacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, responseKeyPrefix+entry.QuestionDigest, entry.Answer, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set response cache entry: %w", err)
	}
	return nil
}

func (s *ResponseCacheStore) Count(ctx context.Context) (int, error) {
	return countKeys(ctx, s.client, responseKeyPrefix+"*")
}

// countKeys scans for a pattern rather than using DBSIZE, since the
// cache keys share a Redis instance with other prefixes.
func countKeys(ctx context.Context, client *redis.Client, pattern string) (int, error) {
	var count int
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: scan %s: %w", pattern, err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
