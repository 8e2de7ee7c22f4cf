package retrieval

import "strings"

// minTokenLength is the lexical pass's token floor: "extract tokens of
// length > 3 from the query" (§4.10).
const minTokenLength = 3

// QueryTokens extracts the case-insensitive tokens from query that the
// lexical pass matches against chunk text: words longer than
// minTokenLength, lowercased, deduplicated.
func QueryTokens(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !isTokenRune(r)
	})

	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		if len(f) <= minTokenLength {
			continue
		}
		lower := strings.ToLower(f)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		tokens = append(tokens, lower)
	}
	return tokens
}

func isTokenRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// MatchesAny reports whether text contains any of tokens, case-insensitive.
func MatchesAny(text string, tokens []string) bool {
	lower := strings.ToLower(text)
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
