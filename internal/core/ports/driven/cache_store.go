package driven

import (
	"context"

	"github.com/localregistry/proxy/internal/core/domain"
)

// EmbeddingCacheStore persists short-TTL content-addressed embedding
// vectors (§4.8). It never re-derives content; it only stores bytes it
// was given.
type EmbeddingCacheStore interface {
	// Get returns the cached vector for textDigest if present and not
	// expired; ok is false on miss or expiry.
	Get(ctx context.Context, textDigest string) (embedding []float32, ok bool, err error)

	// Set upserts the vector for textDigest with the given expiry.
	Set(ctx context.Context, entry domain.EmbeddingCacheEntry) error

	// Count returns the number of (possibly expired) entries, for stats.
	Count(ctx context.Context) (int, error)
}

// ResponseCacheStore persists long-TTL question/answer memoizations
// (§4.9), structurally identical to EmbeddingCacheStore but for answers.
type ResponseCacheStore interface {
	// Get returns the cached answer for questionDigest if present and not
	// expired; ok is false on miss or expiry.
	Get(ctx context.Context, questionDigest string) (answer string, ok bool, err error)

	// Set upserts the answer for questionDigest with the given expiry.
	Set(ctx context.Context, entry domain.ResponseCacheEntry) error

	// Count returns the number of (possibly expired) entries, for stats.
	Count(ctx context.Context) (int, error)
}
