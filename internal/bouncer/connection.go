package bouncer

import (
	"time"

	"github.com/presbrey/dircproxy/internal/netio"
)

// timerPing, timerStoned and timerAntiidle are the fixed timer names the
// once-in-flight guard in netio.Timers keys on for a session's server
// connection (spec.md §4.3 "Server connection stage machine").
const (
	timerPing     = "server_ping"
	timerStoned   = "server_stoned"
	timerAntiidle = "client_antiidle"
)

// NickGuardTime is NICK_GUARD_TIME from spec.md §4.3: the interval at
// which nick_keep retries restoring the client's requested nickname.
const NickGuardTime = 60 * time.Second

// ArmActiveTimers starts the ping/stoned periodic timers once the server
// connection reaches ACTIVE (spec.md §4.3). send is how a PING line gets
// written to the server socket; onStoned is invoked if no PONG arrives
// within pingTimeout.
func (s *Session) ArmActiveTimers(timers *netio.Timers, pingTimeout time.Duration, send func(line string), onStoned func()) {
	if pingTimeout <= 0 {
		return
	}
	var arm func()
	arm = func() {
		timers.Add(s, timerPing, pingTimeout/2, func() {
			send("PING :" + s.serverName())
			arm()
		})
	}
	arm()
	timers.Add(s, timerStoned, pingTimeout, onStoned)
}

func (s *Session) serverName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Class.Servers) == 0 {
		return ""
	}
	return s.Class.Servers[s.Class.NextServer%len(s.Class.Servers)].Host
}

// ArmNickGuard starts (or continues) the nick_keep retry loop (spec.md
// §4.3: "a timer at NICK_GUARD_TIME tries to restore set_nickname whenever
// the current nickname differs"). It no-ops once class.NickKeep is unset
// or the nicknames already match, and otherwise rearms itself every
// NickGuardTime until they converge (original_source/src/irc_client.c's
// ircclient_checknickname/_ircclient_resetnick, which achieve the retry
// loop indirectly through every subsequent nickname-change event instead
// of a single self-rearming timer).
func (s *Session) ArmNickGuard(timers *netio.Timers, send func(nick string)) {
	var arm func()
	fire := func() {
		s.mu.RLock()
		mismatch := s.Nickname != s.SetNickname
		setNick := s.SetNickname
		serverReady := s.ServerStatus.Has(ServerActive)
		s.mu.RUnlock()
		if mismatch && serverReady {
			send(setNick)
		}
		arm()
	}
	arm = func() {
		s.mu.RLock()
		class := s.Class
		mismatch := s.Nickname != s.SetNickname
		s.mu.RUnlock()
		if class == nil || !class.NickKeep || !mismatch {
			return
		}
		timers.Add(s, "client_resetnick", NickGuardTime, fire)
	}
	arm()
}

// OnPong resets the stoned timer; any inbound PONG proves the link alive
// (spec.md §4.3).
func (s *Session) OnPong(timers *netio.Timers, pingTimeout time.Duration, onStoned func()) {
	timers.Del(s, timerStoned)
	if pingTimeout > 0 {
		timers.Add(s, timerStoned, pingTimeout, onStoned)
	}
}

// ArmAntiidle (re)starts the idle_maxtime timer that sends a PRIVMSG with
// no target to suppress the server's own idle disconnect, flagging the
// server's 411 (no recipient) reply to be dropped (spec.md §4.3).
func (s *Session) ArmAntiidle(timers *netio.Timers, idleMaxtime time.Duration, send func(line string)) {
	timers.Del(s, timerAntiidle)
	if idleMaxtime <= 0 {
		return
	}
	timers.Add(s, timerAntiidle, idleMaxtime, func() {
		s.mu.Lock()
		s.SquelchNext411 = true
		s.mu.Unlock()
		send("PRIVMSG")
	})
}

// RearmAntiidleOnClientActivity cancels and restarts the antiidle timer;
// called on every PRIVMSG the client sends (spec.md §4.3: "A PRIVMSG from
// the client cancels and rearms antiidle").
func (s *Session) RearmAntiidleOnClientActivity(timers *netio.Timers, idleMaxtime time.Duration, send func(line string)) {
	s.ArmAntiidle(timers, idleMaxtime, send)
}

// HandleWelcome applies the GOTWELCOME transition: restore user mode,
// away status, and the channel set (spec.md §4.3).
func (s *Session) HandleWelcome(joinChannel func(name, key string)) {
	s.mu.Lock()
	s.ServerStatus |= ServerGotWelcome | ServerActive
	s.mu.Unlock()
	s.Recon.RecordActive()

	for _, ch := range s.Channels.All() {
		ch.mu.Lock()
		unjoined := ch.Unjoined
		name, key := ch.Name, ch.Key
		ch.mu.Unlock()
		if !unjoined {
			joinChannel(name, key)
		}
	}
}

// nicknameErrorNumerics are the registration/runtime numerics that mean
// "the nickname you asked for didn't take" (spec.md §4.3 "Nickname
// handling"): 431/432/433/436/438. 437 means either a temporarily
// unavailable nickname or a temporarily unavailable channel;
// handleServerLine's "437" case disambiguates by inspecting the collided
// name (channel-shaped or not) and re-dispatches
// into HandleNickError as "433" (nick case) before it ever reaches this
// map, so 437 itself never appears here.
var nicknameErrorNumerics = map[string]bool{
	"431": true, "432": true, "433": true, "436": true, "438": true,
}

// HandleNickError implements spec.md §4.3's fallback: param0 is the
// numeric's first parameter, the nickname the server still considers
// valid. If a client is attached the error is passed through unchanged
// (the client software handles its own retry); otherwise a fresh candidate
// is generated and resent automatically.
func (s *Session) HandleNickError(numeric string, param0 string, resend func(nick string)) (passthrough bool) {
	if !nicknameErrorNumerics[numeric] {
		return true
	}
	s.mu.Lock()
	if param0 == "" || param0 == "*" {
		s.Nickname = ""
	} else {
		s.Nickname = param0
	}
	attached := s.ClientStatus.Has(ClientAttached)
	s.mu.Unlock()

	if attached {
		return true
	}

	next := NextGeneratedNick(param0)
	if param0 == "" {
		next = FallbackNick
	}
	resend(next)
	return false
}
