package driving

import (
	"context"

	"github.com/localregistry/proxy/internal/core/domain"
)

// RetrievalService implements the Retrieval Engine's hybrid search
// (§4.10), exposed via POST /api/hybrid-search and consumed internally
// by ChatService.
type RetrievalService interface {
	// HybridSearch runs the semantic+lexical hybrid search for query and
	// returns the top topK results, ranked per §4.10's combined score.
	HybridSearch(ctx context.Context, query string, topK int) ([]domain.RankedChunk, error)
}

// IngestService implements Documentation Ingest (§4.11).
type IngestService interface {
	// Ingest fetches metadata for name, extracts README text, chunks it,
	// embeds each chunk (best-effort), and atomically replaces the
	// package's chunk set. Returns the number of characters ingested.
	Ingest(ctx context.Context, name string) (chars int, err error)

	// RebuildEmbeddings recomputes the embedding for every chunk of a
	// package that currently lacks one, for POST
	// /api/rebuild-embeddings/{package}. Returns (updated, total).
	RebuildEmbeddings(ctx context.Context, name string) (updated, total int, err error)
}
