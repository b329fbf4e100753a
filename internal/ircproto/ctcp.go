package ircproto

import "strings"

const delim = '\x01'

// CTCP is one \x01-delimited payload pulled out of a PRIVMSG/NOTICE.
type CTCP struct {
	Command string   // upper-cased, e.g. "DCC", "ACTION", "VERSION"
	Params  []string // space-split remainder, every argument split (DCC's included)
}

// SplitCTCP pulls every \x01...\x01 run out of text, returning the
// surrounding plain text (with the CTCP regions removed, not just blanked)
// and the parsed CTCP payloads in order. Per spec.md §8, the non-CTCP text
// is byte-identical to the corresponding slice of the input.
func SplitCTCP(text string) (plain string, ctcps []CTCP) {
	var b strings.Builder
	for {
		start := strings.IndexByte(text, delim)
		if start < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		rest := text[start+1:]
		end := strings.IndexByte(rest, delim)
		var payload string
		if end < 0 {
			payload = rest
			text = ""
		} else {
			payload = rest[:end]
			text = rest[end+1:]
		}
		if c, ok := parseCTCP(payload); ok {
			ctcps = append(ctcps, c)
		}
		if end < 0 {
			break
		}
	}
	return b.String(), ctcps
}

func parseCTCP(payload string) (CTCP, bool) {
	payload = dequote(payload)
	if payload == "" {
		return CTCP{}, false
	}
	parts := strings.SplitN(payload, " ", 2)
	c := CTCP{Command: strings.ToUpper(parts[0])}
	if len(parts) > 1 {
		c.Params = strings.Fields(parts[1])
	}
	return c, true
}

// FormatCTCP re-wraps a command+args as a \x01-delimited payload.
func FormatCTCP(command string, args ...string) string {
	parts := append([]string{command}, args...)
	return string(delim) + strings.Join(parts, " ") + string(delim)
}

// Reinject splices a replacement CTCP payload back into text at the
// position of the n-th (0-indexed) CTCP block, preserving every other byte
// exactly. Used by DCC rewriting (spec.md §4.3) which must only ever touch
// the DCC payload, never the surrounding message.
func Reinject(text string, n int, replacement string) string {
	idx := 0
	for i := 0; ; i++ {
		start := strings.IndexByte(text[idx:], delim)
		if start < 0 {
			return text
		}
		start += idx
		rest := text[start+1:]
		end := strings.IndexByte(rest, delim)
		if end < 0 {
			return text
		}
		blockEnd := start + 1 + end + 1
		if i == n {
			return text[:start] + string(delim) + replacement + string(delim) + text[blockEnd:]
		}
		idx = blockEnd
	}
}

// dequote undoes CTCP low-level quoting: backslash is the quote char,
// "\a" -> ^A (0x01), "\\" -> "\". Any other escaped byte is passed through
// literally, matching the original dircproxy's ctcp_unquote.
func dequote(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'a':
				b.WriteByte(0x01)
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Quote is the inverse of dequote, used when composing outgoing CTCPs that
// might legitimately contain '\x01' or '\\'.
func Quote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 0x01:
			b.WriteString(`\a`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
