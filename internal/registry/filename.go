package registry

import "regexp"

// tarballFilenamePattern captures the package name and version out of a
// "{name}-{version}.tgz" cache filename. The name capture is greedy so
// that names containing dashes (including the unscoped tail of a scoped
// package) still resolve correctly; the version capture requires a
// major.minor.patch core with an optional SemVer pre-release suffix,
// per the pre-release tag handling decision recorded in DESIGN.md.
var tarballFilenamePattern = regexp.MustCompile(`^(.+)-(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?)\.tgz$`)

// ParseTarballFilename splits a cache filename into package name and
// version. ok is false if filename does not match the expected shape.
func ParseTarballFilename(filename string) (name, version string, ok bool) {
	m := tarballFilenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// TarballFilename builds the canonical cache filename for a
// package/version pair.
func TarballFilename(name, version string) string {
	return name + "-" + version + ".tgz"
}
