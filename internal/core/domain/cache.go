package domain

import "time"

// ResponseCacheEntry memoizes a chat answer by a content hash of the
// question text. Entries expire 24h after creation (§4.9).
type ResponseCacheEntry struct {
	QuestionDigest string
	Answer         string
	ExpiresAt      time.Time
}

// Expired reports whether the entry should no longer be returned to
// callers as of now.
func (e ResponseCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// EmbeddingCacheEntry memoizes an embedding vector by a fast
// non-cryptographic digest of the input text. Entries expire 1h after
// creation (§4.8).
type EmbeddingCacheEntry struct {
	TextDigest string
	Embedding  []float32
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the entry should no longer be returned to
// callers as of now.
func (e EmbeddingCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

const (
	// EmbeddingCacheTTL is the default lifetime of an embedding cache entry.
	EmbeddingCacheTTL = time.Hour

	// ResponseCacheTTL is the default lifetime of a response cache entry.
	ResponseCacheTTL = 24 * time.Hour
)
