package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/core/ports/driving"
	"github.com/localregistry/proxy/internal/registry"
)

// Verify interface compliance
var _ driving.ProxyService = (*ProxyService)(nil)
var _ registry.Fetcher = (*ProxyService)(nil)

// ProxyService implements driving.ProxyService: the registry proxy &
// cache subsystem (§4.3). It owns the Download Coordinator and is
// itself the registry.Fetcher the coordinator calls back into to
// perform the streaming tee and verification on a cache miss (§4.5,
// §4.6) — this keeps the coordinator's single-flight bookkeeping free
// of any knowledge of tarball bytes or integrity.
type ProxyService struct {
	upstream    driven.UpstreamRegistry
	files       driven.FileCache
	packages    driven.PackageStore
	verifier    *registry.Verifier
	coordinator *registry.Coordinator
	log         *slog.Logger
}

// NewProxyService constructs a ProxyService and its Download
// Coordinator.
func NewProxyService(upstream driven.UpstreamRegistry, files driven.FileCache, packages driven.PackageStore, verifier *registry.Verifier, log *slog.Logger) *ProxyService {
	s := &ProxyService{
		upstream: upstream,
		files:    files,
		packages: packages,
		verifier: verifier,
		log:      log,
	}
	s.coordinator = registry.NewCoordinator(files, s)
	return s
}

// ResolveMetadata implements §4.3's "Resolve metadata(name)".
func (s *ProxyService) ResolveMetadata(ctx context.Context, name string, host string) (domain.Metadata, error) {
	meta, err := s.upstream.FetchMetadata(ctx, name)
	if err == nil {
		rewritten := meta.Clone()
		registry.RewriteTarballURLs(rewritten, "http", host)
		if data, marshalErr := rewritten.MarshalJSON(); marshalErr == nil {
			if writeErr := s.files.WriteMetadata(name, data); writeErr != nil {
				s.log.Warn("proxy: failed to persist rewritten metadata", "package", name, "error", writeErr)
			}
		}
		return rewritten, nil
	}

	s.log.Info("proxy: upstream metadata fetch failed, falling back to cache", "package", name, "error", err)

	cached, readErr := s.files.ReadMetadata(name)
	if readErr != nil {
		return domain.Metadata{}, fmt.Errorf("%w: upstream unreachable and no cache for %s", domain.ErrUnreachable, name)
	}

	meta, parseErr := domain.ParseMetadata(cached)
	if parseErr != nil {
		return domain.Metadata{}, fmt.Errorf("%w: parse cached metadata for %s: %v", domain.ErrProtocol, name, parseErr)
	}

	// Re-rewrite against the current request's host: the server's
	// advertised address may have changed since the last online run, and
	// rewriting is idempotent so re-applying it is always safe.
	registry.RewriteTarballURLs(meta, "http", host)
	return meta, nil
}

// ResolveTarball implements §4.3's "Resolve tarball(name, filename)". It
// writes the tarball bytes directly into dst and returns the number of
// bytes written. On a cache hit, or once a fetch this goroutine was
// waiting on completes, the bytes come from the committed file; on a
// miss this goroutine leads, they arrive live as part of the upstream
// tee (§4.5).
func (s *ProxyService) ResolveTarball(ctx context.Context, name, filename string, host string, dst io.Writer) (int64, error) {
	_, version, ok := registry.ParseTarballFilename(filename)
	if !ok {
		return 0, fmt.Errorf("%w: malformed tarball filename %s", domain.ErrProtocol, filename)
	}
	counting := &countingWriter{w: dst}
	err := s.coordinator.Resolve(ctx, name, version, filename, counting)
	return counting.n, err
}

// countingWriter tracks how many bytes have reached dst, so a caller can
// tell a fetch that failed before any client bytes went out (safe to
// retry with a fresh HTTP status) from one that failed after the tee had
// already started (the client connection must simply be dropped).
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// FetchAndVerify implements registry.Fetcher: the streaming tee of §4.5
// plus the integrity verification of §4.6, invoked by the Coordinator
// exactly once per filename while a fetch is in flight. The upstream
// body is copied to the temp file and dst simultaneously via
// io.MultiWriter, so the requesting client starts receiving bytes as
// they arrive rather than waiting for the whole tarball to land on disk
// first; verification only runs once the tee finishes, since the
// declared digest can't be checked before every byte has been read.
func (s *ProxyService) FetchAndVerify(ctx context.Context, name, version, filename string, dst io.Writer) error {
	meta, err := s.upstream.FetchMetadata(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	tarballURL := meta.TarballURLs()[version]
	if tarballURL == "" {
		return fmt.Errorf("%w: no tarball URL declared for %s@%s", domain.ErrProtocol, name, version)
	}

	body, err := s.upstream.FetchTarball(ctx, tarballURL)
	if err != nil {
		return err
	}
	defer body.Close()

	temp, err := s.files.CreateTempTarball(filename)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if dst == nil {
		dst = io.Discard
	}
	if _, copyErr := io.Copy(io.MultiWriter(temp, dst), body); copyErr != nil {
		temp.Close()
		_ = s.files.DiscardTemp(temp.Name())
		return fmt.Errorf("%w: stream tarball: %v", domain.ErrUnreachable, copyErr)
	}
	if err := temp.Close(); err != nil {
		_ = s.files.DiscardTemp(temp.Name())
		return fmt.Errorf("%w: close temp tarball: %v", domain.ErrPersistence, err)
	}

	if err := s.files.CommitTarball(temp.Name(), filename); err != nil {
		_ = s.files.DiscardTemp(temp.Name())
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	result := s.verifier.Verify(ctx, name, version, filename)

	pkg := domain.Package{
		Name:       name,
		Version:    version,
		CachedPath: filename,
		Verified:   result.Verified,
	}
	if result.Verified {
		pkg.IntegrityString = result.Digest
		pkg.VerificationAt = nowUTC()
	}
	if saveErr := s.packages.Save(ctx, pkg); saveErr != nil {
		s.log.Error("proxy: failed to save package record", "package", name, "version", version, "error", saveErr)
	}

	if result.Threat {
		return fmt.Errorf("%w: %s@%s", domain.ErrIntegrityMismatch, name, version)
	}
	if result.Err != nil {
		return result.Err
	}
	return nil
}

// Precache implements POST /api/precache.
func (s *ProxyService) Precache(ctx context.Context, name, version string, host string) (driving.PrecacheResult, error) {
	meta, err := s.upstream.FetchMetadata(ctx, name)
	if err != nil {
		return driving.PrecacheResult{}, fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}

	if version == "" {
		version = meta.LatestVersion()
	}
	if version == "" || !meta.HasVersion(version) {
		return driving.PrecacheResult{}, domain.ErrNotFound
	}

	filename := registry.TarballFilename(name, version)
	if s.files.TarballExists(filename) {
		return driving.PrecacheResult{Success: true, Message: "already cached", Version: version, Cached: true}, nil
	}

	size, err := s.ResolveTarball(ctx, name, filename, host, io.Discard)
	if err != nil {
		return driving.PrecacheResult{}, err
	}

	return driving.PrecacheResult{Success: true, Message: "downloaded and verified", Version: version, Size: size}, nil
}
