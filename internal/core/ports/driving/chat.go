package driving

import "context"

// ChatService answers questions over ingested documentation, composing
// the Response Cache and the Retrieval Engine (POST /api/chat).
type ChatService interface {
	Chat(ctx context.Context, question string) (ChatAnswer, error)
}

// ChatAnswer is the response shape for POST /api/chat (§6). Source is
// either the originating package name of the top chunk, the literal
// "cache" on a response-cache hit, or "" (rendered as null) when no
// context was found.
type ChatAnswer struct {
	Answer         string
	Source         string
	ResponseTimeMs int64
}
