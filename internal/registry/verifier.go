package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// VerificationResult is the outcome of one Integrity Verifier run,
// matching the three shapes §4.6 enumerates.
type VerificationResult struct {
	Verified  bool
	Threat    bool
	Digest    string
	ElapsedMs int64
	Err       error
}

// Verifier implements the Integrity Verifier (§4.6). It never panics
// out; every code path writes exactly one Security event before
// returning, which is the invariant §8 quantifies over every
// verification attempt.
type Verifier struct {
	upstream driven.UpstreamRegistry
	hasher   driven.HashEngine
	files    driven.FileCache
	audit    driven.AuditStore
	packages driven.PackageStore
	log      *slog.Logger
}

// NewVerifier constructs an Integrity Verifier.
func NewVerifier(upstream driven.UpstreamRegistry, hasher driven.HashEngine, files driven.FileCache, audit driven.AuditStore, packages driven.PackageStore, log *slog.Logger) *Verifier {
	return &Verifier{upstream: upstream, hasher: hasher, files: files, audit: audit, packages: packages, log: log}
}

// Verify runs the 6-step algorithm of §4.6 against the file at
// filename, already written to the cache directory.
func (v *Verifier) Verify(ctx context.Context, name, version, filename string) VerificationResult {
	start := time.Now()

	meta, err := v.upstream.FetchMetadata(ctx, name)
	if err != nil {
		return v.fail(ctx, name, version, start, fmt.Errorf("fetch upstream metadata for verification: %w", err))
	}

	integrity := meta.VersionIntegrity(version)
	if integrity == "" {
		return v.fail(ctx, name, version, start, fmt.Errorf("%w: upstream declares no integrity for %s@%s", domain.ErrProtocol, name, version))
	}

	expectedAlgo, expectedDigest := domain.ParseIntegrity(integrity)
	if expectedAlgo == "" {
		expectedAlgo = string(domain.AlgorithmSHA512)
	}

	observedDigest, err := v.hasher.Digest(v.localPathFor(filename), expectedAlgo)
	if err != nil {
		return v.fail(ctx, name, version, start, fmt.Errorf("compute local digest: %w", err))
	}

	observed := domain.CanonicalIntegrity(expectedAlgo, splitDigest(observedDigest))
	expected := domain.CanonicalIntegrity(expectedAlgo, expectedDigest)

	elapsed := time.Since(start).Milliseconds()

	if observed == expected {
		v.writeEvent(ctx, domain.SecurityEvent{
			PackageName: name, Version: version, Kind: domain.EventSuccess,
			ObservedDigest: observed, ExpectedDigest: expected, At: time.Now(),
		})
		return VerificationResult{Verified: true, Digest: observed, ElapsedMs: elapsed}
	}

	if err := v.files.DeleteTarball(filename); err != nil {
		v.log.Warn("verifier: failed to delete mismatched tarball", "filename", filename, "error", err)
	}
	v.writeEvent(ctx, domain.SecurityEvent{
		PackageName: name, Version: version, Kind: domain.EventThreatDetected,
		ObservedDigest: observed, ExpectedDigest: expected, At: time.Now(),
		Details: "computed digest does not match upstream-declared integrity",
	})
	return VerificationResult{Verified: false, Threat: true, Digest: observed, ElapsedMs: elapsed}
}

func (v *Verifier) fail(ctx context.Context, name, version string, start time.Time, err error) VerificationResult {
	v.writeEvent(ctx, domain.SecurityEvent{
		PackageName: name, Version: version, Kind: domain.EventFailure,
		At: time.Now(), Details: err.Error(),
	})
	return VerificationResult{Verified: false, Err: err, ElapsedMs: time.Since(start).Milliseconds()}
}

func (v *Verifier) writeEvent(ctx context.Context, event domain.SecurityEvent) {
	if err := v.audit.Append(ctx, event); err != nil {
		v.log.Error("verifier: failed to write security event", "package", event.PackageName, "kind", event.Kind, "error", err)
	}
}

// localPathFor and splitDigest are small seams kept here rather than on
// FileCache so the Verifier can compute a digest without the FileCache
// interface having to expose raw filesystem paths to every other
// caller.
func (v *Verifier) localPathFor(filename string) string {
	type pathProvider interface{ LocalPath(filename string) string }
	if p, ok := v.files.(pathProvider); ok {
		return p.LocalPath(filename)
	}
	return filename
}

func splitDigest(observedDigest string) string {
	_, digest := domain.ParseIntegrity(observedDigest)
	return digest
}
