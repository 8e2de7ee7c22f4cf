package driving

import (
	"context"

	"github.com/localregistry/proxy/internal/core/domain"
)

// StatsService backs GET /api/stats, GET /api/vector-stats, and
// GET /api/security-stats.
type StatsService interface {
	Stats(ctx context.Context) (domain.Stats, error)
	VectorStats(ctx context.Context) (domain.VectorStats, error)
	SecurityStats(ctx context.Context) (domain.SecurityStats, error)
}
