package driven

import "context"

// ModelBackend is the outbound client to the embedding/generation model
// backend (an OpenAI-compatible HTTP contract, per §4.2). It performs no
// retries; embedding failures are caller-policy (absent vector is
// valid), generation failures surface as an error string in the chat
// answer rather than an HTTP failure.
type ModelBackend interface {
	// Embed generates one embedding vector per input text, in order. On
	// failure the whole call fails and callers treat every requested
	// vector as absent; a text for which the backend returns no vector is
	// left as a nil entry in an otherwise successful result.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery is a convenience wrapper over Embed for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Generate produces a free-form completion for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Dimensions returns the vector dimensionality the configured
	// embedding model produces.
	Dimensions() int

	// HealthCheck reports whether the backend is currently reachable.
	// Retrieval does not call it: a failed EmbedQuery is what makes a
	// search skip the semantic pass.
	HealthCheck(ctx context.Context) error
}
