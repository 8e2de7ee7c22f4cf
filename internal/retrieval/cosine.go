// Package retrieval implements the pure scoring math behind the
// Retrieval Engine's hybrid search: cosine similarity over embedding
// vectors and lexical token matching. Storage and orchestration live in
// internal/core/services; this package is deliberately free of any
// store or context dependency so it can be tested in isolation.
package retrieval

import "math"

// CosineSimilarity computes Σaᵢbᵢ / (√Σaᵢ² · √Σbᵢ²). A zero denominator
// or mismatched dimensions yield 0, never an error (§4.10).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
