package domain

import "strings"

// ParseIntegrity splits an integrity string of the form "<algo>-<base64>"
// into its algorithm and digest components. An integrity string with no
// "-" separator is treated as having an empty algorithm; callers default
// that to sha512 per §4.6.
func ParseIntegrity(integrity string) (algo string, digest string) {
	idx := strings.Index(integrity, "-")
	if idx < 0 {
		return "", integrity
	}
	return integrity[:idx], integrity[idx+1:]
}

// CanonicalIntegrity rebuilds a canonical "<algo>-<base64>" string,
// defaulting algo to sha512 when empty, matching the canonicalization
// step of §4.6's comparison.
func CanonicalIntegrity(algo, digest string) string {
	if algo == "" {
		algo = string(AlgorithmSHA512)
	}
	return algo + "-" + digest
}
