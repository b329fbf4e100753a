package ircproto

import "testing"

func TestParseAndFormatRoundTrip(t *testing.T) {
	cases := []struct {
		source, command string
		params           []string
	}{
		{"", "PING", []string{"server.example.com"}},
		{"nick!user@host", "PRIVMSG", []string{"#chan", "hello there"}},
		{"irc.example.com", "005", []string{"alice", "NICKLEN=30", "are supported by this server"}},
		{"", "JOIN", []string{"#chan"}},
	}
	for _, c := range cases {
		line := Format(c.source, c.command, c.params...)
		msg, ok := Parse(line)
		if !ok {
			t.Fatalf("Parse(%q) failed to parse", line)
		}
		if msg.Source != c.source {
			t.Errorf("source = %q, want %q", msg.Source, c.source)
		}
		if msg.Command != c.command {
			t.Errorf("command = %q, want %q", msg.Command, c.command)
		}
		if len(msg.Params) != len(c.params) {
			t.Fatalf("params = %v, want %v", msg.Params, c.params)
		}
		for i := range c.params {
			if msg.Params[i] != c.params[i] {
				t.Errorf("param[%d] = %q, want %q", i, msg.Params[i], c.params[i])
			}
		}
	}
}

func TestParseEmptyTrailing(t *testing.T) {
	msg, ok := Parse("PRIVMSG #chan :")
	if !ok {
		t.Fatal("expected ok")
	}
	if len(msg.Params) != 2 || msg.Params[1] != "" {
		t.Errorf("params = %v", msg.Params)
	}
}

func TestNickAndUserHost(t *testing.T) {
	if got := Nick("alice!a@b"); got != "alice" {
		t.Errorf("Nick = %q", got)
	}
	if got := Nick("irc.server.net"); got != "irc.server.net" {
		t.Errorf("Nick(server) = %q", got)
	}
	nick, user, host := UserHost("alice!bob@example.com")
	if nick != "alice" || user != "bob" || host != "example.com" {
		t.Errorf("UserHost = %q %q %q", nick, user, host)
	}
}

func TestCaseFolding(t *testing.T) {
	if !EqualFold("Alice[x]", "alice{x}") {
		t.Error("expected IRC-casefold equal")
	}
	if Lower(`Test\User`) != `test|user` {
		t.Errorf("Lower = %q", Lower(`Test\User`))
	}
	if EqualFold("alice", "bob") {
		t.Error("expected not equal")
	}
}
