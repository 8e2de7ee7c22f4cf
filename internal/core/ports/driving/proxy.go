package driving

import (
	"context"
	"io"

	"github.com/localregistry/proxy/internal/core/domain"
)

// ProxyService implements the registry proxy & cache subsystem exposed
// by the HTTP surface's proxy routes (§4.3, §6).
type ProxyService interface {
	// ResolveMetadata implements "Resolve metadata(name)" from §4.3. host
	// is the scheme+authority every versions[*].dist.tarball URL is
	// rewritten to point at — the only place request identity enters the
	// system.
	ResolveMetadata(ctx context.Context, name string, host string) (domain.Metadata, error)

	// ResolveTarball implements "Resolve tarball(name, filename)" from
	// §4.3. It streams the tarball bytes into dst and returns the number
	// written, waiting on the Download Coordinator if a fetch is already
	// in flight and dispatching a new one otherwise. On a miss, bytes
	// reach dst live as part of the upstream tee rather than only after
	// the whole file has been downloaded and verified.
	ResolveTarball(ctx context.Context, name, filename string, host string, dst io.Writer) (int64, error)

	// Precache downloads, verifies, and records a specific (or latest)
	// version of a package without a client tarball request driving it,
	// for POST /api/precache.
	Precache(ctx context.Context, name, version string, host string) (PrecacheResult, error)
}

// PrecacheResult is the outcome of a precache request, serialized per
// §6 as `{ success, message, version, size | cached: true }`.
type PrecacheResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Version string `json:"version"`
	Size    int64  `json:"size,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
}
