package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EmbeddingCacheStore = (*EmbeddingCacheStore)(nil)
var _ driven.ResponseCacheStore = (*ResponseCacheStore)(nil)

// EmbeddingCacheStore implements driven.EmbeddingCacheStore using
// PostgreSQL, for deployments with no Redis configured.
type EmbeddingCacheStore struct {
	db *DB
}

func NewEmbeddingCacheStore(db *DB) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db}
}

func (s *EmbeddingCacheStore) Get(ctx context.Context, textDigest string) ([]float32, bool, error) {
	var embedding []float64
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT embedding, expires_at FROM embedding_cache WHERE text_digest = $1
	`, textDigest).Scan(pq.Array(&embedding), &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !time.Now().Before(expiresAt) {
		return nil, false, nil
	}
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(v)
	}
	return out, true, nil
}

func (s *EmbeddingCacheStore) Set(ctx context.Context, entry domain.EmbeddingCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (text_digest, embedding, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (text_digest) DO UPDATE SET
			embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
	`, entry.TextDigest, pq.Array(entry.Embedding), entry.CreatedAt, entry.ExpiresAt)
	return err
}

func (s *EmbeddingCacheStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count)
	return count, err
}

// ResponseCacheStore implements driven.ResponseCacheStore using
// PostgreSQL, for deployments with no Redis configured.
type ResponseCacheStore struct {
	db *DB
}

func NewResponseCacheStore(db *DB) *ResponseCacheStore {
	return &ResponseCacheStore{db: db}
}

func (s *ResponseCacheStore) Get(ctx context.Context, questionDigest string) (string, bool, error) {
	var answer string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT answer, expires_at FROM response_cache WHERE question_digest = $1
	`, questionDigest).Scan(&answer, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !time.Now().Before(expiresAt) {
		return "", false, nil
	}
	return answer, true, nil
}

func (s *ResponseCacheStore) Set(ctx context.Context, entry domain.ResponseCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_cache (question_digest, answer, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (question_digest) DO UPDATE SET
			answer = EXCLUDED.answer, expires_at = EXCLUDED.expires_at
	`, entry.QuestionDigest, entry.Answer, entry.ExpiresAt)
	return err
}

func (s *ResponseCacheStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM response_cache`).Scan(&count)
	return count, err
}
