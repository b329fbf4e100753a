// Package hostmask implements the wildcard matcher spec.md treats as the
// external primitive match(pattern, text) used for ConnectionClass "from"
// patterns, ban masks, and DCC-related hostmask checks.
package hostmask

import "github.com/presbrey/dircproxy/internal/ircproto"

// Match reports whether text matches pattern, where '*' matches any run of
// zero or more characters and '?' matches exactly one, under IRC
// case-folding. The implementation is the classic two-pointer iterative
// matcher (no recursion, no backtracking stack) so that pathological
// patterns like "*a*a*a*a*a*a*b" run in at most len(pattern)*len(text)
// steps, never exponential time (spec.md §8).
func Match(pattern, text string) bool {
	p := []byte(ircproto.Lower(pattern))
	s := []byte(ircproto.Lower(text))

	var pi, si int
	starIdx, matchIdx := -1, 0

	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			starIdx = pi
			matchIdx = si
			pi++
		case starIdx != -1:
			pi = starIdx + 1
			matchIdx++
			si = matchIdx
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// MatchAny reports whether text matches any of patterns; used for a
// ConnectionClass's ordered "from" host-pattern list (spec.md §4.3).
func MatchAny(patterns []string, text string) bool {
	for _, p := range patterns {
		if Match(p, text) {
			return true
		}
	}
	return false
}
