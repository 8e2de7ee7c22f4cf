package driven

import (
	"context"

	"github.com/localregistry/proxy/internal/core/domain"
)

// PackageStore persists Package records (§3). A record with
// Verified=true is the only evidence that a cached tarball's digest has
// ever been checked against an upstream-declared integrity string.
type PackageStore interface {
	// Save creates or overwrites the record for (name, version).
	Save(ctx context.Context, pkg domain.Package) error

	// Get retrieves the record for (name, version). Returns
	// domain.ErrNotFound if absent.
	Get(ctx context.Context, name, version string) (domain.Package, error)

	// ListByName returns every record known for a package name, across
	// versions.
	ListByName(ctx context.Context, name string) ([]domain.Package, error)

	// DistinctPackageNames returns every package name with at least one
	// record, for GET /api/stats.
	DistinctPackageNames(ctx context.Context) ([]string, error)
}
