package chunking

// Config holds the Chunker's tunable window parameters (§6's
// configuration, §4.7's defaults).
type Config struct {
	ChunkSize int
	Overlap   int
}

// DefaultConfig returns the standard defaults: 800 code units per
// chunk, 100 code units of overlap.
func DefaultConfig() Config {
	return Config{ChunkSize: 800, Overlap: 100}
}

// Split splits text into deterministic, overlapping fixed-size windows
// of runes (§4.7). Operating on []rune rather than raw bytes means a
// multi-byte UTF-8 sequence is never split mid-codepoint, satisfying the
// "no surrogate splitting" requirement on a byte-neutral unit.
//
// Produces ceil((L-overlap) / (chunkSize-overlap)) chunks for length L
// > overlap; the final chunk is shorter if the text does not divide
// evenly. A non-empty text of at most overlap runes produces one chunk.
// Empty input produces zero chunks.
func Split(text string, cfg Config) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	stride := cfg.ChunkSize - cfg.Overlap
	if stride <= 0 {
		stride = cfg.ChunkSize
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))

		if end == len(runes) {
			break
		}

		next := start + stride
		if next <= start {
			// Always make progress even if overlap >= chunkSize.
			next = start + 1
		}
		start = next
	}
	return chunks
}
