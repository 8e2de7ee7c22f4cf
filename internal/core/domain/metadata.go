package domain

import "encoding/json"

// Metadata wraps an upstream package metadata document as a generic
// JSON object. The document's schema is upstream's to define; this
// server only ever reads a handful of fields (name, description, readme,
// dist-tags, versions[*].dist.tarball/integrity) and mutates exactly one
// of them (versions[*].dist.tarball) on rewrite. Keeping the full
// document as a generic map, rather than decoding into a narrow struct
// and re-encoding, is what lets the "mutated only in one field"
// invariant in §3 hold: every other upstream field round-trips
// byte-for-byte through Raw.
type Metadata struct {
	Raw map[string]any
}

// ParseMetadata decodes an upstream metadata JSON document.
func ParseMetadata(b []byte) (Metadata, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Metadata{}, err
	}
	return Metadata{Raw: raw}, nil
}

// MarshalJSON re-encodes the document, including any rewrites applied to
// Raw in place.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Raw)
}

// Name returns the "name" field, or "" if absent.
func (m Metadata) Name() string {
	s, _ := m.Raw["name"].(string)
	return s
}

// Description returns the "description" field, or "" if absent.
func (m Metadata) Description() string {
	s, _ := m.Raw["description"].(string)
	return s
}

// Readme returns the "readme" field, or "" if absent.
func (m Metadata) Readme() string {
	s, _ := m.Raw["readme"].(string)
	return s
}

// ReadmeText returns the README, falling back to the short description
// when the README is absent or blank, per the Documentation Ingest
// extraction rule (§4.11).
func (m Metadata) ReadmeText() string {
	if r := m.Readme(); r != "" {
		return r
	}
	return m.Description()
}

// LatestVersion returns the version string pointed to by the "latest"
// dist-tag, or "" if absent. Resolution beyond latest-vs-pinned is
// explicitly out of scope.
func (m Metadata) LatestVersion() string {
	tags, _ := m.Raw["dist-tags"].(map[string]any)
	if tags == nil {
		return ""
	}
	latest, _ := tags["latest"].(string)
	return latest
}

// VersionIntegrity returns the dist.integrity string declared for a
// version, or "" if the version or its integrity field is absent.
func (m Metadata) VersionIntegrity(version string) string {
	dist := m.versionDist(version)
	if dist == nil {
		return ""
	}
	integrity, _ := dist["integrity"].(string)
	return integrity
}

// HasVersion reports whether the document declares the given version.
func (m Metadata) HasVersion(version string) bool {
	versions, _ := m.Raw["versions"].(map[string]any)
	if versions == nil {
		return false
	}
	_, ok := versions[version]
	return ok
}

// TarballURLs returns every versions[*].dist.tarball URL present in the
// document, keyed by version.
func (m Metadata) TarballURLs() map[string]string {
	out := map[string]string{}
	versions, _ := m.Raw["versions"].(map[string]any)
	for version := range versions {
		if dist := m.versionDist(version); dist != nil {
			if tb, ok := dist["tarball"].(string); ok {
				out[version] = tb
			}
		}
	}
	return out
}

// SetTarballURL overwrites versions[version].dist.tarball in place.
func (m Metadata) SetTarballURL(version, url string) {
	dist := m.versionDist(version)
	if dist == nil {
		return
	}
	dist["tarball"] = url
}

func (m Metadata) versionDist(version string) map[string]any {
	versions, _ := m.Raw["versions"].(map[string]any)
	if versions == nil {
		return nil
	}
	entry, _ := versions[version].(map[string]any)
	if entry == nil {
		return nil
	}
	dist, _ := entry["dist"].(map[string]any)
	return dist
}

// Clone returns a deep-enough copy of the document suitable for
// rewriting against a different host without mutating the cached
// original. Only the map structure down to dist blocks is copied, which
// is all rewriting ever touches.
func (m Metadata) Clone() Metadata {
	clonedRaw := make(map[string]any, len(m.Raw))
	for k, v := range m.Raw {
		clonedRaw[k] = v
	}
	if versions, ok := m.Raw["versions"].(map[string]any); ok {
		clonedVersions := make(map[string]any, len(versions))
		for version, entryAny := range versions {
			entry, ok := entryAny.(map[string]any)
			if !ok {
				clonedVersions[version] = entryAny
				continue
			}
			clonedEntry := make(map[string]any, len(entry))
			for k, v := range entry {
				clonedEntry[k] = v
			}
			if dist, ok := entry["dist"].(map[string]any); ok {
				clonedDist := make(map[string]any, len(dist))
				for k, v := range dist {
					clonedDist[k] = v
				}
				clonedEntry["dist"] = clonedDist
			}
			clonedVersions[version] = clonedEntry
		}
		clonedRaw["versions"] = clonedVersions
	}
	return Metadata{Raw: clonedRaw}
}
