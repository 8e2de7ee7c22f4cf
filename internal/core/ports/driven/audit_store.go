package driven

import (
	"context"

	"github.com/localregistry/proxy/internal/core/domain"
)

// AuditStore is the Security event log (§3): append-only, with aggregate
// queries for GET /api/security-stats.
type AuditStore interface {
	// Append writes one Security event. Every completed verification
	// attempt calls this exactly once.
	Append(ctx context.Context, event domain.SecurityEvent) error

	// Stats computes the aggregate view for GET /api/security-stats,
	// including the 10 most recent events (newest first).
	Stats(ctx context.Context) (domain.SecurityStats, error)
}
