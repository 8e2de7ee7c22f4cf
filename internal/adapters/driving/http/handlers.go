package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/localregistry/proxy/internal/core/domain"
)

// ErrorResponse is the JSON shape of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Proxy routes

// handleMetadata godoc
// @Summary  Fetch rewritten package metadata
// @Tags     Proxy
// @Produce  json
// @Success  200  {object}  map[string]any
// @Failure  502  {object}  ErrorResponse
// @Router   /{package} [get]
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	meta, err := s.proxy.ResolveMetadata(r.Context(), name, r.Host)
	if err != nil {
		if errors.Is(err, domain.ErrUnreachable) {
			writeError(w, http.StatusBadGateway, "upstream unreachable and no cached copy")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve metadata")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(meta)
}

// handleTarball godoc
// @Summary  Stream a package tarball
// @Tags     Proxy
// @Produce  octet-stream
// @Success  200
// @Failure  502  {object}  ErrorResponse
// @Router   /{package}/-/{filename} [get]
func (s *Server) handleTarball(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	filename := r.PathValue("filename")

	dst := &tarballWriter{w: w}
	_, err := s.proxy.ResolveTarball(r.Context(), name, filename, r.Host, dst)
	if err != nil {
		if dst.wrote {
			// The tee already sent some or all of the tarball to this
			// client (§4.5) before the copy failed or the integrity check
			// came back bad — there is no valid status line left to send,
			// so the connection is dropped rather than appending an error
			// body to an in-flight response.
			panic(http.ErrAbortHandler)
		}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "tarball not found")
		case errors.Is(err, domain.ErrProtocol):
			writeError(w, http.StatusBadRequest, "malformed tarball filename")
		default:
			writeError(w, http.StatusBadGateway, "failed to fetch tarball")
		}
		return
	}
}

// tarballWriter defers sending response headers until the first byte of
// the tarball actually arrives, so a resolve failure that happens before
// any streaming starts can still produce a normal status code.
type tarballWriter struct {
	w     http.ResponseWriter
	wrote bool
}

func (t *tarballWriter) Write(p []byte) (int, error) {
	if !t.wrote {
		t.w.Header().Set("Content-Type", "application/octet-stream")
		t.w.WriteHeader(http.StatusOK)
		t.wrote = true
	}
	return t.w.Write(p)
}

// JSON API routes

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer         string  `json:"answer"`
	Source         *string `json:"source"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
}

// handleChat godoc
// @Summary  Answer a question over ingested documentation
// @Tags     Chat
// @Accept   json
// @Produce  json
// @Success  200  {object}  chatResponse
// @Router   /api/chat [post]
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.chat.Chat(r.Context(), req.Question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	resp := chatResponse{Answer: answer.Answer, ResponseTimeMs: answer.ResponseTimeMs}
	if answer.Source != "" {
		resp.Source = &answer.Source
	}
	writeJSON(w, http.StatusOK, resp)
}

type hybridSearchRequest struct {
	Query string `json:"query"`
}

type rankedChunkResponse struct {
	Package      string  `json:"package"`
	ChunkIndex   int     `json:"chunkIndex"`
	Text         string  `json:"text"`
	VectorScore  float64 `json:"vectorScore"`
	LexicalScore float64 `json:"lexicalScore"`
	Combined     float64 `json:"combined"`
}

const hybridSearchTopK = 5

// handleHybridSearch godoc
// @Summary  Run hybrid search over ingested documentation
// @Tags     Search
// @Accept   json
// @Produce  json
// @Success  200  {array}  rankedChunkResponse
// @Router   /api/hybrid-search [post]
func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	var req hybridSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.search.HybridSearch(r.Context(), req.Query, hybridSearchTopK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hybrid search failed")
		return
	}

	out := make([]rankedChunkResponse, len(results))
	for i, rc := range results {
		out[i] = rankedChunkResponse{
			Package:      rc.Chunk.PackageName,
			ChunkIndex:   rc.Chunk.ChunkIndex,
			Text:         rc.Chunk.Text,
			VectorScore:  rc.VectorScore,
			LexicalScore: rc.LexicalScore,
			Combined:     rc.Combined,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStats godoc
// @Summary  Aggregate ingest and cache counters
// @Tags     Stats
// @Produce  json
// @Success  200  {object}  domain.Stats
// @Router   /api/stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleVectorStats godoc
// @Summary  Embedding coverage and optimization status
// @Tags     Stats
// @Produce  json
// @Success  200  {object}  domain.VectorStats
// @Router   /api/vector-stats [get]
func (s *Server) handleVectorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.VectorStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute vector stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSecurityStats godoc
// @Summary  Verification outcomes and recent security events
// @Tags     Stats
// @Produce  json
// @Success  200  {object}  domain.SecurityStats
// @Router   /api/security-stats [get]
func (s *Server) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.SecurityStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute security stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type rebuildEmbeddingsResponse struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// handleRebuildEmbeddings godoc
// @Summary  Recompute missing embeddings for a package's chunks
// @Tags     Ingest
// @Produce  json
// @Success  200  {object}  rebuildEmbeddingsResponse
// @Router   /api/rebuild-embeddings/{package} [post]
func (s *Server) handleRebuildEmbeddings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	updated, total, err := s.ingest.RebuildEmbeddings(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rebuild embeddings")
		return
	}
	writeJSON(w, http.StatusOK, rebuildEmbeddingsResponse{Updated: updated, Total: total})
}

type precacheRequest struct {
	PackageName string `json:"packageName"`
	Version     string `json:"version"`
}

// handlePrecache godoc
// @Summary  Download, verify, and record a package version ahead of demand
// @Tags     Proxy
// @Accept   json
// @Produce  json
// @Success  200  {object}  driving.PrecacheResult
// @Failure  404  {object}  ErrorResponse
// @Router   /api/precache [post]
func (s *Server) handlePrecache(w http.ResponseWriter, r *http.Request) {
	var req precacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.proxy.Precache(r.Context(), req.PackageName, req.Version, r.Host)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown version")
			return
		}
		writeError(w, http.StatusBadGateway, "precache failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type forceScrapeResponse struct {
	Success bool   `json:"success"`
	Chars   int    `json:"chars"`
	Package string `json:"package"`
}

// handleForceScrape godoc
// @Summary  Synchronously re-run documentation ingest for a package
// @Tags     Ingest
// @Produce  json
// @Success  200  {object}  forceScrapeResponse
// @Router   /force-scrape/{package} [get]
func (s *Server) handleForceScrape(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	chars, err := s.ingest.Ingest(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusOK, forceScrapeResponse{Success: false, Package: name})
		return
	}
	writeJSON(w, http.StatusOK, forceScrapeResponse{Success: true, Chars: chars, Package: name})
}

type healthzResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealthz godoc
// @Summary  Liveness check
// @Tags     Health
// @Produce  json
// @Success  200  {object}  healthzResponse
// @Router   /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", Version: s.cfg.Version})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
