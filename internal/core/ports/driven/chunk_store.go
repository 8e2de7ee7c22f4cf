package driven

import (
	"context"

	"github.com/localregistry/proxy/internal/core/domain"
)

// ChunkStore persists Chunks (§3). Chunks for a given package are
// replaced atomically as a set on re-ingest: ReplaceForPackage deletes
// the prior set and inserts the new one within a single transaction.
type ChunkStore interface {
	// ReplaceForPackage atomically replaces every chunk belonging to
	// packageName with chunks. Called by the Documentation Ingest
	// pipeline; chunks must already be indexed 0..len(chunks)-1.
	ReplaceForPackage(ctx context.Context, packageName string, chunks []domain.Chunk) error

	// GetByPackage returns every chunk for a package, ordered by
	// ChunkIndex ascending.
	GetByPackage(ctx context.Context, packageName string) ([]domain.Chunk, error)

	// AllWithEmbeddings returns every chunk across every package that
	// carries a non-absent embedding, for the Retrieval Engine's semantic
	// pass.
	AllWithEmbeddings(ctx context.Context) ([]domain.Chunk, error)

	// All returns every chunk across every package, for the Retrieval
	// Engine's lexical pass.
	All(ctx context.Context) ([]domain.Chunk, error)

	// UpdateEmbedding overwrites the embedding for one chunk, used by
	// POST /api/rebuild-embeddings/{package}.
	UpdateEmbedding(ctx context.Context, packageName string, chunkIndex int, embedding []float32) error

	// CountTotal returns the total number of chunks, for stats endpoints.
	CountTotal(ctx context.Context) (int, error)

	// CountWithEmbeddings returns the number of chunks carrying a
	// non-absent embedding, for stats endpoints.
	CountWithEmbeddings(ctx context.Context) (int, error)
}
