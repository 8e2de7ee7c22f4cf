package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/core/ports/driving"
	"github.com/localregistry/proxy/internal/retrieval"
)

// topKCandidateFactor times topK caps each pass before merge, per §4.10 ("take the top-2K").
const topKCandidateFactor = 2

var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalConfig holds the hybrid search tuning knobs §4.16 lists as
// environment-configurable rather than fixed: the semantic pass's cosine
// floor, the combined-score weights, and how long a derived query
// embedding stays in the Embedding Cache.
type RetrievalConfig struct {
	MinSimilarity       float64
	HybridVectorWeight  float64
	HybridLexicalWeight float64
	EmbeddingCacheTTL   time.Duration
}

// DefaultRetrievalConfig mirrors the domain package's built-in defaults,
// for callers (and tests) that don't need to override tuning.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		MinSimilarity:       domain.DefaultMinSimilarity,
		HybridVectorWeight:  domain.DefaultHybridVectorWeight,
		HybridLexicalWeight: domain.DefaultHybridLexicalWeight,
		EmbeddingCacheTTL:   domain.EmbeddingCacheTTL,
	}
}

// RetrievalService implements the hybrid search algorithm of §4.10: a
// semantic pass over cached embeddings, a lexical pass over chunk text,
// merged and ranked by a weighted combined score. It degrades to
// lexical-only when the embedding backend is unavailable, falling back
// to text-only search for that call.
type RetrievalService struct {
	chunks     driven.ChunkStore
	embeddings driven.EmbeddingCacheStore
	model      driven.ModelBackend
	cfg        RetrievalConfig
}

func NewRetrievalService(chunks driven.ChunkStore, embeddings driven.EmbeddingCacheStore, model driven.ModelBackend, cfg RetrievalConfig) *RetrievalService {
	return &RetrievalService{chunks: chunks, embeddings: embeddings, model: model, cfg: cfg}
}

// HybridSearch runs the five-step process of §4.10 and returns the top
// topK ranked chunks.
func (s *RetrievalService) HybridSearch(ctx context.Context, query string, topK int) ([]domain.RankedChunk, error) {
	if topK <= 0 {
		topK = 5
	}
	candidateLimit := topK * topKCandidateFactor

	queryEmbedding, semanticAvailable := s.queryEmbedding(ctx, query)

	merged := make(map[string]*domain.RankedChunk)

	if semanticAvailable {
		semantic, err := s.semanticPass(ctx, queryEmbedding, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("services: semantic pass: %w", err)
		}
		for i := range semantic {
			rc := semantic[i]
			merged[chunkKey(rc.Chunk)] = &rc
		}
	}

	lexical, err := s.lexicalPass(ctx, query, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("services: lexical pass: %w", err)
	}
	for _, c := range lexical {
		key := chunkKey(c)
		if existing, ok := merged[key]; ok {
			existing.LexicalScore = 1
			existing.Combined = domain.Combine(existing.VectorScore, 1, s.cfg.HybridVectorWeight, s.cfg.HybridLexicalWeight)
			continue
		}
		merged[key] = &domain.RankedChunk{
			Chunk:        c,
			VectorScore:  0,
			LexicalScore: 1,
			Combined:     domain.Combine(0, 1, s.cfg.HybridVectorWeight, s.cfg.HybridLexicalWeight),
		}
	}

	results := make([]domain.RankedChunk, 0, len(merged))
	for _, rc := range merged {
		results = append(results, *rc)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func chunkKey(c domain.Chunk) string {
	return c.PackageName + "\x00" + fmt.Sprint(c.ChunkIndex)
}

// queryEmbedding attempts the Embedding Cache then the model backend.
// ok is false when no embedding could be produced, signaling the
// lexical-only degraded mode.
func (s *RetrievalService) queryEmbedding(ctx context.Context, query string) ([]float32, bool) {
	digest := retrieval.TextDigest(query)
	if cached, found, err := s.embeddings.Get(ctx, digest); err == nil && found {
		return cached, true
	}

	embedding, err := s.model.EmbedQuery(ctx, query)
	if err != nil {
		return nil, false
	}

	entry := domain.EmbeddingCacheEntry{
		TextDigest: digest,
		Embedding:  embedding,
		CreatedAt:  nowUTC(),
		ExpiresAt:  nowUTC().Add(s.cfg.EmbeddingCacheTTL),
	}
	_ = s.embeddings.Set(ctx, entry)

	return embedding, true
}

func (s *RetrievalService) semanticPass(ctx context.Context, queryEmbedding []float32, limit int) ([]domain.RankedChunk, error) {
	chunks, err := s.chunks.AllWithEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []domain.RankedChunk
	for _, c := range chunks {
		score := retrieval.CosineSimilarity(queryEmbedding, c.Embedding)
		if score < s.cfg.MinSimilarity {
			continue
		}
		candidates = append(candidates, domain.RankedChunk{
			Chunk:       c,
			VectorScore: score,
			Combined:    domain.Combine(score, 0, s.cfg.HybridVectorWeight, s.cfg.HybridLexicalWeight),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].VectorScore > candidates[j].VectorScore
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *RetrievalService) lexicalPass(ctx context.Context, query string, limit int) ([]domain.Chunk, error) {
	tokens := retrieval.QueryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	all, err := s.chunks.All(ctx)
	if err != nil {
		return nil, err
	}

	var matched []domain.Chunk
	for _, c := range all {
		if retrieval.MatchesAny(c.Text, tokens) {
			matched = append(matched, c)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}
