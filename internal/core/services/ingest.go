package services

import (
	"context"
	"fmt"

	"github.com/localregistry/proxy/internal/chunking"
	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/core/ports/driving"
)

// readmeTruncateLimit is the "truncate to 5000 code units" rule of §4.11.
const readmeTruncateLimit = 5000

var _ driving.IngestService = (*IngestService)(nil)

// IngestService implements Documentation Ingest (§4.11): fetch
// metadata, extract and truncate the README, chunk it, embed each chunk
// best-effort, and atomically replace the package's chunk set.
type IngestService struct {
	upstream driven.UpstreamRegistry
	chunks   driven.ChunkStore
	model    driven.ModelBackend
	chunkCfg chunking.Config
}

func NewIngestService(upstream driven.UpstreamRegistry, chunks driven.ChunkStore, model driven.ModelBackend, chunkCfg chunking.Config) *IngestService {
	return &IngestService{upstream: upstream, chunks: chunks, model: model, chunkCfg: chunkCfg}
}

func (s *IngestService) Ingest(ctx context.Context, name string) (int, error) {
	metadata, err := s.upstream.FetchMetadata(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("services: ingest %s: %w", name, err)
	}

	text := truncateRunes(metadata.ReadmeText(), readmeTruncateLimit)
	windows := chunking.Split(text, s.chunkCfg)

	chunks := make([]domain.Chunk, len(windows))
	now := nowUTC()
	for i, w := range windows {
		chunk := domain.Chunk{
			PackageName: name,
			ChunkIndex:  i,
			Text:        w,
			CreatedAt:   now,
		}
		if embedding, err := s.model.EmbedQuery(ctx, w); err == nil {
			chunk.Embedding = embedding
		}
		chunks[i] = chunk
	}

	if err := s.chunks.ReplaceForPackage(ctx, name, chunks); err != nil {
		return 0, fmt.Errorf("services: persist chunks for %s: %w", name, err)
	}

	return len([]rune(text)), nil
}

func (s *IngestService) RebuildEmbeddings(ctx context.Context, name string) (updated, total int, err error) {
	chunks, err := s.chunks.GetByPackage(ctx, name)
	if err != nil {
		return 0, 0, fmt.Errorf("services: load chunks for %s: %w", name, err)
	}
	total = len(chunks)

	for _, c := range chunks {
		if c.HasEmbedding() {
			continue
		}
		embedding, embedErr := s.model.EmbedQuery(ctx, c.Text)
		if embedErr != nil {
			continue
		}
		if err := s.chunks.UpdateEmbedding(ctx, name, c.ChunkIndex, embedding); err != nil {
			return updated, total, fmt.Errorf("services: update embedding for %s[%d]: %w", name, c.ChunkIndex, err)
		}
		updated++
	}
	return updated, total, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
