// Package ircproto implements the wire-level IRC codec used throughout the
// bouncer: line framing, source/command/param parsing, CTCP extraction, and
// the IRC case-folding rules. Nothing here knows about sockets or sessions.
package ircproto

import "strings"

// Message is a parsed IRC line: :prefix command params... :trailing
type Message struct {
	Source  string   // prefix without the leading ':', empty if absent
	Command string   // always upper-cased
	Params  []string // middle params followed by the trailing param, if any
	Raw     string   // the original line, unparsed, for replay/logging
}

// Parse parses a single raw IRC line (without the trailing CRLF) into a
// Message. It returns false if the line has no command.
func Parse(line string) (Message, bool) {
	msg := Message{Raw: line}
	rest := line

	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return Message{}, false
		}
		msg.Source = rest[1:sp]
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	if rest == "" {
		return Message{}, false
	}

	for {
		rest = trimLeadingSpaces(rest)
		if rest == "" {
			break
		}
		if rest[0] == ':' {
			msg.Params = append(msg.Params, rest[1:])
			break
		}
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			msg.Params = append(msg.Params, rest)
			break
		}
		msg.Params = append(msg.Params, rest[:sp])
		rest = rest[sp+1:]
	}

	if len(msg.Params) == 0 {
		return Message{}, false
	}
	msg.Command = strings.ToUpper(msg.Params[0])
	msg.Params = msg.Params[1:]
	return msg, true
}

// trimLeadingSpaces implements the RFC1459-vs-RFC2812 ambiguity noted in
// spec.md §6 (OLD_RFC1459_PARAM_SPACE): one-or-more spaces between params,
// not exactly one. dircproxy always parses the permissive way; Format always
// emits exactly one, which satisfies both readers.
func trimLeadingSpaces(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

// Format renders a Message back to wire form. The last parameter is sent as
// a trailing (":"-prefixed) parameter if it is empty, contains a space, or
// already starts with ':'; this mirrors how real IRC clients serialize.
func Format(source, command string, params ...string) string {
	var b strings.Builder
	if source != "" {
		b.WriteByte(':')
		b.WriteString(source)
		b.WriteByte(' ')
	}
	b.WriteString(command)
	for i, p := range params {
		b.WriteByte(' ')
		last := i == len(params)-1
		if last && needsTrailing(p) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

func needsTrailing(p string) bool {
	return p == "" || strings.ContainsRune(p, ' ') || strings.HasPrefix(p, ":")
}

// Nick extracts the nickname portion of a "nick!user@host" source. If there
// is no '!' the whole source is returned (server sources look like this).
func Nick(source string) string {
	if i := strings.IndexByte(source, '!'); i >= 0 {
		return source[:i]
	}
	return source
}

// UserHost splits "nick!user@host" into its three parts. Any part may come
// back empty if the source doesn't have that shape.
func UserHost(source string) (nick, user, host string) {
	bang := strings.IndexByte(source, '!')
	at := strings.IndexByte(source, '@')
	switch {
	case bang >= 0 && at > bang:
		return source[:bang], source[bang+1 : at], source[at+1:]
	case at >= 0:
		return "", "", source[at+1:]
	default:
		return source, "", ""
	}
}
