package registry

import "net/url"

// RewriteTarballURLs substitutes the scheme+authority of every
// versions[*].dist.tarball URL in meta with host's scheme+authority,
// leaving the path untouched. meta is rewritten in place through
// SetTarballURL; callers that need the original keep a clone of it.
// Rewriting is idempotent: rewriting an
// already-rewritten document against the same host reproduces the same
// URLs, because only the scheme+authority is replaced and the path is
// always preserved verbatim.
func RewriteTarballURLs(meta MetadataLike, scheme, host string) {
	for version, tarballURL := range meta.TarballURLs() {
		u, err := url.Parse(tarballURL)
		if err != nil {
			continue
		}
		u.Scheme = scheme
		u.Host = host
		meta.SetTarballURL(version, u.String())
	}
}

// MetadataLike is the narrow interface RewriteTarballURLs needs from
// domain.Metadata, kept separate so the rewrite logic can be unit tested
// against a fake without pulling in JSON decoding.
type MetadataLike interface {
	TarballURLs() map[string]string
	SetTarballURL(version, url string)
}
