package postgres

import (
	"context"
	"database/sql"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PackageStore = (*PackageStore)(nil)

// PackageStore implements driven.PackageStore using PostgreSQL.
type PackageStore struct {
	db *DB
}

// NewPackageStore creates a new PackageStore.
func NewPackageStore(db *DB) *PackageStore {
	return &PackageStore{db: db}
}

func (s *PackageStore) Save(ctx context.Context, pkg domain.Package) error {
	query := `
		INSERT INTO packages (name, version, integrity_string, cached_path, verified, verification_at, algorithm)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name, version) DO UPDATE SET
			integrity_string = EXCLUDED.integrity_string,
			cached_path = EXCLUDED.cached_path,
			verified = EXCLUDED.verified,
			verification_at = EXCLUDED.verification_at,
			algorithm = EXCLUDED.algorithm
	`
	var verificationAt sql.NullTime
	if !pkg.VerificationAt.IsZero() {
		verificationAt = sql.NullTime{Time: pkg.VerificationAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		pkg.Name, pkg.Version, pkg.IntegrityString, pkg.CachedPath, pkg.Verified, verificationAt, string(pkg.Algorithm),
	)
	return err
}

func (s *PackageStore) Get(ctx context.Context, name, version string) (domain.Package, error) {
	query := `
		SELECT name, version, integrity_string, cached_path, verified, verification_at, algorithm
		FROM packages WHERE name = $1 AND version = $2
	`
	var pkg domain.Package
	var verificationAt sql.NullTime
	var algo string
	err := s.db.QueryRowContext(ctx, query, name, version).Scan(
		&pkg.Name, &pkg.Version, &pkg.IntegrityString, &pkg.CachedPath, &pkg.Verified, &verificationAt, &algo,
	)
	if err == sql.ErrNoRows {
		return domain.Package{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Package{}, err
	}
	pkg.Algorithm = domain.Algorithm(algo)
	if verificationAt.Valid {
		pkg.VerificationAt = verificationAt.Time
	}
	return pkg, nil
}

func (s *PackageStore) ListByName(ctx context.Context, name string) ([]domain.Package, error) {
	query := `
		SELECT name, version, integrity_string, cached_path, verified, verification_at, algorithm
		FROM packages WHERE name = $1
	`
	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packages []domain.Package
	for rows.Next() {
		var pkg domain.Package
		var verificationAt sql.NullTime
		var algo string
		if err := rows.Scan(&pkg.Name, &pkg.Version, &pkg.IntegrityString, &pkg.CachedPath, &pkg.Verified, &verificationAt, &algo); err != nil {
			return nil, err
		}
		pkg.Algorithm = domain.Algorithm(algo)
		if verificationAt.Valid {
			pkg.VerificationAt = verificationAt.Time
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

func (s *PackageStore) DistinctPackageNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM packages ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
