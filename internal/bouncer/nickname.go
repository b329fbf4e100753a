package bouncer

import "strings"

// MaxNickLength is the wire length dircproxy's nickname generator fills
// before it starts cycling the trailing characters (spec.md §8 example).
const MaxNickLength = 9

// FallbackNick is used once every cycled position has been exhausted.
const FallbackNick = "dircproxy"

// nickCycle is the per-position sequence a regenerated nickname's trailing
// characters are walked through, left-to-right exhaustion order reversed
// (spec.md §4.3: "cycle the last character through - → 0..9 → _,
// propagating the carry leftwards").
const nickCycle = "-0123456789_"

// NextGeneratedNick deterministically produces the next candidate nickname
// once the current one has been rejected and no client is attached to
// supply a replacement (spec.md §4.3 "Nickname handling", §8 worked
// example). Calling it repeatedly from the same starting point reproduces
// the full fallback sequence, terminating in FallbackNick.
func NextGeneratedNick(current string) string {
	if len(current) < MaxNickLength {
		return current + "-"
	}

	b := []byte(current)
	for pos := len(b) - 1; pos >= 0; pos-- {
		idx := strings.IndexByte(nickCycle, b[pos])
		if idx < 0 {
			b[pos] = '-'
			return string(b)
		}
		if idx+1 < len(nickCycle) {
			b[pos] = nickCycle[idx+1]
			return string(b)
		}
		b[pos] = '-'
	}
	return FallbackNick
}

// SubstituteDetachNickname applies the detach_nickname pattern (spec.md
// §4.3 detach path): a literal '*' in the pattern is replaced with the
// current nickname; a pattern with no '*' is used verbatim.
func SubstituteDetachNickname(pattern, currentNick string) string {
	if pattern == "" {
		return currentNick
	}
	if strings.ContainsRune(pattern, '*') {
		return strings.Replace(pattern, "*", currentNick, 1)
	}
	return pattern
}
