package services

import (
	"context"
	"fmt"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/core/ports/driving"
)

var _ driving.StatsService = (*StatsService)(nil)

// StatsService backs GET /api/stats, GET /api/vector-stats, and
// GET /api/security-stats, composing the stores the rest of the
// system writes independently rather than maintaining its own counters.
type StatsService struct {
	packages   driven.PackageStore
	chunks     driven.ChunkStore
	embeddings driven.EmbeddingCacheStore
	responses  driven.ResponseCacheStore
	audit      driven.AuditStore
}

func NewStatsService(
	packages driven.PackageStore,
	chunks driven.ChunkStore,
	embeddings driven.EmbeddingCacheStore,
	responses driven.ResponseCacheStore,
	audit driven.AuditStore,
) *StatsService {
	return &StatsService{packages: packages, chunks: chunks, embeddings: embeddings, responses: responses, audit: audit}
}

func (s *StatsService) Stats(ctx context.Context) (domain.Stats, error) {
	totalChunks, err := s.chunks.CountTotal(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("services: stats total chunks: %w", err)
	}
	cachedResponses, err := s.responses.Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("services: stats cached responses: %w", err)
	}
	embeddingsCached, err := s.embeddings.Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("services: stats embeddings cached: %w", err)
	}
	packages, err := s.packages.DistinctPackageNames(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("services: stats distinct packages: %w", err)
	}

	return domain.Stats{
		TotalChunks:      totalChunks,
		CachedResponses:  cachedResponses,
		EmbeddingsCached: embeddingsCached,
		DistinctPackages: len(packages),
		Packages:         packages,
	}, nil
}

func (s *StatsService) VectorStats(ctx context.Context) (domain.VectorStats, error) {
	totalChunks, err := s.chunks.CountTotal(ctx)
	if err != nil {
		return domain.VectorStats{}, fmt.Errorf("services: vector stats total chunks: %w", err)
	}
	withEmbeddings, err := s.chunks.CountWithEmbeddings(ctx)
	if err != nil {
		return domain.VectorStats{}, fmt.Errorf("services: vector stats embedded chunks: %w", err)
	}
	embeddingsCached, err := s.embeddings.Count(ctx)
	if err != nil {
		return domain.VectorStats{}, fmt.Errorf("services: vector stats embeddings cached: %w", err)
	}
	responsesCached, err := s.responses.Count(ctx)
	if err != nil {
		return domain.VectorStats{}, fmt.Errorf("services: vector stats responses cached: %w", err)
	}

	var coverage float64
	if totalChunks > 0 {
		coverage = 100 * float64(withEmbeddings) / float64(totalChunks)
	}

	return domain.VectorStats{
		TotalChunks:          totalChunks,
		ChunksWithEmbeddings: withEmbeddings,
		EmbeddingCoveragePct: coverage,
		EmbeddingsCached:     embeddingsCached,
		ResponsesCached:      responsesCached,
		VectorOptimizationOn: true,
	}, nil
}

func (s *StatsService) SecurityStats(ctx context.Context) (domain.SecurityStats, error) {
	stats, err := s.audit.Stats(ctx)
	if err != nil {
		return domain.SecurityStats{}, fmt.Errorf("services: security stats: %w", err)
	}
	return stats, nil
}
