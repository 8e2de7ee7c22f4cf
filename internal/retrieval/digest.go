package retrieval

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// TextDigest returns the fast non-cryptographic content digest the
// Embedding Cache and Response Cache key their entries by (§4.8, §4.9).
// xxhash is already part of the dependency graph via go-redis's
// internal rendezvous hashing; it is the same family of tool this
// system needs for a cache key, just applied directly instead of
// indirectly.
func TextDigest(text string) string {
	sum := xxhash.Sum64String(text)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * (7 - i)))
	}
	return hex.EncodeToString(buf[:])
}
