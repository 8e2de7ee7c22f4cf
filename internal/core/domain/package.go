package domain

import "time"

// Algorithm identifies a digest algorithm declared by an upstream
// integrity string.
type Algorithm string

const (
	AlgorithmSHA512 Algorithm = "sha512"
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmSHA1   Algorithm = "sha1"
)

// Package is the record created on every tarball download attempt,
// successful or failed. Immutable after creation: a re-download creates a
// new record, or overwrites the existing one only after a successful
// re-verification.
type Package struct {
	Name            string
	Version         string
	IntegrityString string
	CachedPath      string
	Verified        bool
	VerificationAt  time.Time
	Algorithm       Algorithm
}

// TarballFilename returns the canonical on-disk filename for this
// package/version, matching the layout the Package Cache uses to key
// cached tarballs: "{name}-{version}.tgz". Scoped package names (e.g.
// "@scope/name") are not special-cased here; the registry layer is
// responsible for producing a filesystem-safe filename before this is
// called.
func (p Package) TarballFilename() string {
	return p.Name + "-" + p.Version + ".tgz"
}
