package bouncer

import "strings"

// selfEchoCommands are the commands spec.md §4.6 calls out by name:
// "Nick/mode/join/part/kick/quit/topic originating from self are
// squelched if and only if the bouncer itself originated them, except
// the synthetic self-NICK which is forced as a self-command."
var selfEchoCommands = map[string]bool{
	"NICK":  true,
	"MODE":  true,
	"JOIN":  true,
	"PART":  true,
	"KICK":  true,
	"QUIT":  true,
	"TOPIC": true,
}

// ShouldSquelchSelfEcho decides whether a server line that echoes the
// session's own action should be dropped before reaching the client
// (spec.md §4.6). originatedByBouncer is true when the bouncer itself
// issued the underlying command (e.g. the synthetic MODE query after
// JOIN, or a detach-triggered PART); forcedSelfNick marks the synthetic
// self-NICK correction sent on attach, which is never squelched.
func ShouldSquelchSelfEcho(command string, isSelf, originatedByBouncer, forcedSelfNick bool) bool {
	if forcedSelfNick {
		return false
	}
	if !isSelf {
		return false
	}
	if !selfEchoCommands[strings.ToUpper(command)] {
		return false
	}
	return originatedByBouncer
}

// ShouldSquelchChannelModes reports whether a 324/477 numeric for a
// channel should be dropped because it answers our own synthetic MODE
// query issued right after JOIN (spec.md §3 dynamic flags, §4.6).
func (s *Session) ShouldSquelchChannelModes(foldedChannel string) bool {
	return s.Channels.ConsumeModesSquelch(foldedChannel)
}
