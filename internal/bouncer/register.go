package bouncer

import (
	"fmt"
	"strings"

	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/hostmask"
)

// Registration accumulates the PASS/NICK/USER triple a connecting client
// sends in any order before the bouncer recognizes anything else
// (spec.md §4.3 "Registration (client → bouncer)").
type Registration struct {
	Pass     string
	Nick     string
	User     string
	Realname string

	gotPass, gotNick, gotUser bool
}

// Feed applies one registration-phase command. ok is false once the
// command isn't one of PASS/NICK/USER (the caller should reject it with
// the appropriate numeric, or treat it as "registration still pending").
func (r *Registration) Feed(command string, params []string) (ok bool) {
	switch command {
	case "PASS":
		if len(params) > 0 {
			r.Pass = params[0]
			r.gotPass = true
		}
		return true
	case "NICK":
		if len(params) > 0 {
			r.Nick = params[0]
			r.gotNick = true
		}
		return true
	case "USER":
		if len(params) >= 4 {
			r.User = params[0]
			r.Realname = params[3]
			r.gotUser = true
		}
		return true
	default:
		return false
	}
}

// Complete reports whether PASS, NICK, and USER have all arrived.
func (r *Registration) Complete() bool {
	return r.gotPass && r.gotNick && r.gotUser
}

// ErrNoMatchingClass means no ConnectionClass accepted the credentials.
var ErrNoMatchingClass = fmt.Errorf("bouncer: no matching connection class")

// Authenticate walks classes in order (spec.md §4.3) and returns the
// first whose password and (if configured) host-pattern list both match.
// clientAddr is the raw connecting address; resolvedHost is the reverse-DNS
// result, which may be empty.
func Authenticate(classes []*config.ConnectionClass, verifier config.Verifier, reg Registration, clientAddr, resolvedHost string) (*config.ConnectionClass, error) {
	for _, c := range classes {
		if !verifier.Verify(reg.Pass, c.Password) {
			continue
		}
		if len(c.HostPatterns) > 0 {
			if !hostmask.MatchAny(c.HostPatterns, clientAddr) && !hostmask.MatchAny(c.HostPatterns, resolvedHost) {
				continue
			}
		}
		return c, nil
	}
	return nil, ErrNoMatchingClass
}

// Attach binds a newly authenticated client connection to an existing (or
// brand new) session, per spec.md §4.3 "Attach path". correctedNick is the
// self-NICK the client must be told to adopt, if its requested nickname
// differs from what the server-side session already holds ("" if none is
// needed).
func (s *Session) Attach(reg Registration) (correctedNick string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ClientStatus |= ClientGotPass | ClientGotNick | ClientGotUser | ClientAttached
	s.Username = reg.User
	s.Realname = reg.Realname
	s.SetNickname = reg.Nick

	if s.Nickname == "" {
		s.Nickname = reg.Nick
		s.ClientStatus |= ClientGotNickConfirmed
	} else if reg.Nick != s.Nickname {
		correctedNick = s.Nickname
	}

	if s.OldNickname != "" {
		s.OldNickname = ""
	}
	s.AwayMessage = ""
	return correctedNick
}

// Detach implements spec.md §4.3 "Detach path" state transitions that
// belong to the session record itself; socket teardown and message
// delivery are the caller's responsibility so this stays testable without
// a live connection.
func (s *Session) Detach(class *config.ConnectionClass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ClientStatus &^= ClientAttached
	s.ClientSocket = nil

	if class.DropModes != "" {
		s.Modes = dropModeChars(s.Modes, class.DropModes)
	}
	if s.AwayMessage == "" && class.AwayMessage != "" {
		s.AwayMessage = class.AwayMessage
	}
	if class.DetachNickname != "" {
		s.OldNickname = s.SetNickname
		s.Nickname = SubstituteDetachNickname(class.DetachNickname, s.Nickname)
	}
}

func dropModeChars(modes, drop string) string {
	var b strings.Builder
	for _, m := range modes {
		if !strings.ContainsRune(drop, m) {
			b.WriteRune(m)
		}
	}
	return b.String()
}

// modesIntersect reports whether any letter of modes also appears in
// refuse, per refuse_modes's original check (strcspn(modes, refuse) !=
// strlen(modes): the leading run of non-refused letters doesn't cover the
// whole string, so something refused snuck in).
func modesIntersect(modes, refuse string) bool {
	for _, m := range modes {
		if strings.ContainsRune(refuse, m) {
			return true
		}
	}
	return false
}

// applyModeChange folds a "+abc-de"-style personal mode change into the
// tracked mode set (original_source/src/irc_client.c's
// ircclient_change_mode): a leading '+' or '-' switches between adding and
// removing subsequent letters, and a change with no sign at all is treated
// as additions, matching the unsigned initial_modes directive.
func applyModeChange(modes, change string) string {
	add := true
	for _, c := range change {
		switch c {
		case '+':
			add = true
		case '-':
			add = false
		default:
			has := strings.ContainsRune(modes, c)
			switch {
			case add && !has:
				i := 0
				for i < len(modes) && rune(modes[i]) < c {
					i++
				}
				modes = modes[:i] + string(c) + modes[i:]
			case !add && has:
				modes = dropModeChars(modes, string(c))
			}
		}
	}
	return modes
}
