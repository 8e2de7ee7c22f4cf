package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/core/ports/driving"
	"github.com/localregistry/proxy/internal/retrieval"
)

// noDocumentationAnswer is returned whenever retrieval produces no
// context at all — an empty question, an uningested package, or a
// question with no lexical or semantic match (§8).
const noDocumentationAnswer = "No documentation found for this question."

// llmUnavailableAnswer is the canned answer returned when the model
// backend fails to generate; chat never surfaces LLM errors as an HTTP
// failure (§4.14).
const llmUnavailableAnswer = "Unable to generate an answer right now."

const chatTopK = 5

var _ driving.ChatService = (*ChatService)(nil)

// ChatService answers questions over ingested documentation by
// composing the Response Cache and the Retrieval Engine ahead of the
// model backend's chat completion (POST /api/chat).
type ChatService struct {
	responses   driven.ResponseCacheStore
	engine      driving.RetrievalService
	model       driven.ModelBackend
	responseTTL time.Duration
}

func NewChatService(responses driven.ResponseCacheStore, engine driving.RetrievalService, model driven.ModelBackend, responseTTL time.Duration) *ChatService {
	return &ChatService{responses: responses, engine: engine, model: model, responseTTL: responseTTL}
}

func (s *ChatService) Chat(ctx context.Context, question string) (driving.ChatAnswer, error) {
	start := nowUTC()

	digest := retrieval.TextDigest(question)
	if cached, found, err := s.responses.Get(ctx, digest); err == nil && found {
		return driving.ChatAnswer{
			Answer:         cached,
			Source:         "cache",
			ResponseTimeMs: elapsedMs(start),
		}, nil
	}

	results, err := s.engine.HybridSearch(ctx, question, chatTopK)
	if err != nil {
		return driving.ChatAnswer{}, fmt.Errorf("services: chat retrieval: %w", err)
	}
	if len(results) == 0 {
		return driving.ChatAnswer{
			Answer:         noDocumentationAnswer,
			Source:         "",
			ResponseTimeMs: elapsedMs(start),
		}, nil
	}

	prompt := buildPrompt(question, results)
	answer, err := s.model.Generate(ctx, prompt)
	if err != nil {
		return driving.ChatAnswer{
			Answer:         llmUnavailableAnswer,
			Source:         "",
			ResponseTimeMs: elapsedMs(start),
		}, nil
	}

	entry := domain.ResponseCacheEntry{
		QuestionDigest: digest,
		Answer:         answer,
		ExpiresAt:      nowUTC().Add(s.responseTTL),
	}
	_ = s.responses.Set(ctx, entry)

	return driving.ChatAnswer{
		Answer:         answer,
		Source:         results[0].Chunk.PackageName,
		ResponseTimeMs: elapsedMs(start),
	}, nil
}

func buildPrompt(question string, results []domain.RankedChunk) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the documentation excerpts below.\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "--- %s (chunk %d) ---\n%s\n\n", r.Chunk.PackageName, r.Chunk.ChunkIndex, r.Chunk.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
