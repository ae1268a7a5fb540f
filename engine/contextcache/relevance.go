package contextcache

import "strings"

// stopWords are stripped from both the new and cached query before scoring,
// per spec §4.2.
var stopWords = map[string]struct{}{
	"get": {}, "find": {}, "show": {}, "list": {}, "create": {}, "update": {},
	"delete": {}, "the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "with": {},
	"for": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "from": {},
}

// meaningfulTokens lower-cases and splits s on whitespace/punctuation,
// discarding stop-words and empty tokens.
func meaningfulTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// relevanceScore implements spec §4.2's keyword-overlap relevance: exact
// token match scores +2, a substring match (either direction) scores +1.
// Each cached token is matched against its single best-scoring new token to
// avoid double counting.
func relevanceScore(newQuery, cachedQuery string) int {
	newTokens := meaningfulTokens(newQuery)
	cachedTokens := meaningfulTokens(cachedQuery)
	score := 0
	for _, c := range cachedTokens {
		best := 0
		for _, n := range newTokens {
			if n == c {
				best = 2
				break
			}
			if strings.Contains(n, c) || strings.Contains(c, n) {
				if best < 1 {
					best = 1
				}
			}
		}
		score += best
	}
	return score
}
