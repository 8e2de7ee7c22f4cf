package driven

import (
	"context"
	"io"

	"github.com/localregistry/proxy/internal/core/domain"
)

// UpstreamRegistry is the outbound client to the public upstream
// registry. It maintains a pool of reusable TLS 1.2+ connections and
// performs no retries at this layer (§4.2); retrying is a policy
// decision made by callers.
type UpstreamRegistry interface {
	// FetchMetadata retrieves and parses the metadata document for a
	// package. Times out after the configured metadata timeout (default
	// 10s).
	FetchMetadata(ctx context.Context, name string) (domain.Metadata, error)

	// FetchTarball opens a streaming body for a package tarball. The
	// caller must close the returned ReadCloser. The configured tarball
	// timeout (default 60s) bounds the wait for the response headers;
	// once the body is streaming, a stalled read is ended only by the
	// caller's context, as there is no per-read idle timeout.
	FetchTarball(ctx context.Context, tarballURL string) (io.ReadCloser, error)
}
