package hashing

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.HashEngine = (*Engine)(nil)

// streamBufferSize bounds the read buffer used when hashing a file, so
// memory use stays independent of file size (§4.1).
const streamBufferSize = 64 * 1024

// Engine implements driven.HashEngine using the standard library's
// streaming hash.Hash implementations. No third-party digest library is
// used: stdlib's crypto/sha1, crypto/sha256, and crypto/sha512 are the
// idiomatic choice across the whole retrieval pack for this purpose, and
// no example repo reaches for a third-party hashing library.
type Engine struct{}

// NewEngine creates a new streaming Hash Engine.
func NewEngine() *Engine {
	return &Engine{}
}

func newHash(algo string) (hash.Hash, error) {
	switch domain.Algorithm(algo) {
	case domain.AlgorithmSHA512, "":
		return sha512.New(), nil
	case domain.AlgorithmSHA256:
		return sha256.New(), nil
	case domain.AlgorithmSHA1:
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("hashing: unsupported algorithm %q", algo)
	}
}

// Digest reads path as a byte stream and returns its digest under algo,
// canonicalized to "<algo>-<base64>".
func (e *Engine) Digest(path string, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, streamBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing: read %s: %w", path, err)
	}

	canonicalAlgo := algo
	if canonicalAlgo == "" {
		canonicalAlgo = string(domain.AlgorithmSHA512)
	}
	return canonicalAlgo + "-" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
