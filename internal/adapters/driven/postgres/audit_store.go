package postgres

import (
	"context"
	"fmt"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AuditStore = (*AuditStore)(nil)

// AuditStore implements driven.AuditStore using PostgreSQL: an
// append-only security_events table plus the aggregate query behind
// GET /api/security-stats.
type AuditStore struct {
	db *DB
}

func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, event domain.SecurityEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (package_name, version, kind, observed_digest, expected_digest, at, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.PackageName, event.Version, string(event.Kind), event.ObservedDigest, event.ExpectedDigest, event.At, event.Details)
	return err
}

func (s *AuditStore) Stats(ctx context.Context) (domain.SecurityStats, error) {
	var stats domain.SecurityStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'success'),
			COUNT(*) FILTER (WHERE kind = 'threat_detected'),
			COUNT(*) FILTER (WHERE kind = 'failure')
		FROM security_events
	`).Scan(&stats.Total, &stats.Successful, &stats.ThreatsDetected, &stats.Failures)
	if err != nil {
		return domain.SecurityStats{}, err
	}

	if stats.Total > 0 {
		stats.SuccessRate = fmt.Sprintf("%.2f", 100*float64(stats.Successful)/float64(stats.Total))
	} else {
		stats.SuccessRate = "0.00"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT package_name, version, kind, observed_digest, expected_digest, at, details
		FROM security_events ORDER BY at DESC LIMIT 10
	`)
	if err != nil {
		return domain.SecurityStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.SecurityEvent
		var kind string
		if err := rows.Scan(&e.PackageName, &e.Version, &kind, &e.ObservedDigest, &e.ExpectedDigest, &e.At, &e.Details); err != nil {
			return domain.SecurityStats{}, err
		}
		e.Kind = domain.EventKind(kind)
		stats.RecentEvents = append(stats.RecentEvents, e)
	}
	return stats, rows.Err()
}
