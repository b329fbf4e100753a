package bouncer

import (
	"strings"
	"time"

	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/ircproto"
	"github.com/presbrey/dircproxy/internal/logstore"
	"github.com/presbrey/dircproxy/internal/netio"
)

// splitSlashMe implements the attach_message/detach_message "/me " prefix
// convention (spec.md §4.3: "interpret a leading /me as a CTCP ACTION"):
// the remainder is sent as a CTCP ACTION instead of a plain PRIVMSG.
func splitSlashMe(msg string) (text string, action bool) {
	if len(msg) >= 4 && strings.EqualFold(msg[:4], "/me ") {
		return msg[4:], true
	}
	return msg, false
}

// sendChannelText writes msg to name as a plain PRIVMSG or, if action, a
// CTCP ACTION, over the server socket.
func sendChannelText(sock *netio.Socket, name, msg string, action bool) {
	if action {
		sock.Write(ircproto.Format("", "PRIVMSG", name, ircproto.FormatCTCP("ACTION", msg)))
	} else {
		sock.Write(ircproto.Format("", "PRIVMSG", name, msg))
	}
}

// runAttachSequence replays the parts of spec.md §4.3's Attach path that
// require a live, ACTIVE server connection: NickServ identify, clearing an
// automatically-set away message, rejoining channels parted since the last
// attach, and announcing the reattach to every channel still considered
// joined (original_source/src/irc_client.c's post-attach block).
func runAttachSequence(session *Session, class *config.ConnectionClass) {
	session.mu.RLock()
	sock := session.ServerSocket
	active := session.ServerStatus.Has(ServerActive)
	session.mu.RUnlock()
	if sock == nil || !active {
		return
	}

	if class.NickservPassword != "" {
		sock.Write(ircproto.Format("", "PRIVMSG", "NICKSERV", "IDENTIFY "+class.NickservPassword))
	}

	session.mu.Lock()
	autoAway := session.AwayMessage != "" && session.AwayMessage == class.AwayMessage
	if autoAway {
		session.AwayMessage = ""
	}
	session.mu.Unlock()
	if autoAway {
		sock.Write(ircproto.Format("", "AWAY"))
	}

	for _, ch := range session.Channels.All() {
		ch.mu.Lock()
		name, key, unjoined := ch.Name, ch.Key, ch.Unjoined
		ch.mu.Unlock()
		if !unjoined {
			continue
		}
		if key != "" {
			sock.Write(ircproto.Format("", "JOIN", name, key))
		} else {
			sock.Write(ircproto.Format("", "JOIN", name))
		}
	}

	if class.AttachMessage == "" {
		return
	}
	text, action := splitSlashMe(class.AttachMessage)
	for _, ch := range session.Channels.All() {
		ch.mu.Lock()
		name, inactive := ch.Name, ch.Inactive
		ch.mu.Unlock()
		if inactive {
			continue
		}
		sendChannelText(sock, name, text, action)
	}
}

// runDetachSequence mirrors runAttachSequence for the moment a client
// leaves without QUITting (spec.md §4.3 "Detach path"): drop_modes is sent
// to the server, detach_message is announced, channel_leave_on_detach PARTs
// every channel (keeping or discarding the record depending on whether a
// later reattach should rejoin it), and an automatic away message is set.
// Must be called before Session.Detach mutates the local bookkeeping these
// decisions read.
func runDetachSequence(session *Session, class *config.ConnectionClass) {
	session.mu.RLock()
	sock := session.ServerSocket
	active := session.ServerStatus.Has(ServerActive)
	hasAway := session.AwayMessage != ""
	nick := session.Nickname
	session.mu.RUnlock()
	if sock == nil || !active {
		return
	}

	if class.DropModes != "" {
		sock.Write(ircproto.Format("", "MODE", nick, "-"+class.DropModes))
	}

	if class.DetachMessage != "" {
		text, action := splitSlashMe(class.DetachMessage)
		for _, ch := range session.Channels.All() {
			ch.mu.Lock()
			name, inactive, unjoined := ch.Name, ch.Inactive, ch.Unjoined
			ch.mu.Unlock()
			if inactive || unjoined {
				continue
			}
			sendChannelText(sock, name, text, action)
		}
	}

	if class.ChannelLeaveOnDetach {
		for _, ch := range session.Channels.All() {
			ch.mu.Lock()
			name, folded, inactive, unjoined := ch.Name, ircproto.Lower(ch.Name), ch.Inactive, ch.Unjoined
			ch.mu.Unlock()
			if inactive || unjoined {
				continue
			}
			sock.Write(ircproto.Format("", "PART", name))
			if class.ChannelRejoinOnAttach {
				session.Channels.MarkUnjoined(folded)
			} else {
				session.Channels.Remove(folded)
			}
		}
	}

	if !hasAway && class.AwayMessage != "" {
		sock.Write(ircproto.Format("", "AWAY", class.AwayMessage))
	}
}

// isChannelName reports whether a PRIVMSG/NOTICE destination names a
// channel rather than a nick, per the channel prefixes spec.md's grammar
// accepts in channel-name position.
func isChannelName(s string) bool {
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "&")
}

// logEventAllowed resolves a class's log_events directive against one
// event kind (original_source/trunk/src/irc_log.c's "p->conn_class->log_events
// & event" bitmask test, folded into dircproxy's comma-separated
// "all|none|+kind|-kind" list form). An empty list means every kind is
// logged, matching DEFAULT_LOG_EVENTS being all bits set.
func logEventAllowed(events []string, kind string) bool {
	if len(events) == 0 {
		return true
	}
	allowed := false
	kind = strings.ToLower(kind)
	for _, raw := range events {
		e := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case e == "":
			continue
		case e == "all":
			allowed = true
		case e == "none":
			allowed = false
		case strings.HasPrefix(e, "-"):
			if e[1:] == kind {
				allowed = false
			}
		case strings.HasPrefix(e, "+"):
			if e[1:] == kind {
				allowed = true
			}
		default:
			if e == kind {
				allowed = true
			}
		}
	}
	return allowed
}

// recordMessage appends one PRIVMSG/NOTICE/CTCP line to the channel or
// private log, gated by log_events and that namespace's enabled/always
// policy: logging only happens while a client is attached unless
// *_log_always keeps it running in the background too (spec.md §4.5,
// original_source/src/irc_net.c chan_log_always check).
func recordMessage(session *Session, class *config.ConnectionClass, kind, destination, source, text string) {
	if class == nil || session.Logs == nil || text == "" || !logEventAllowed(class.LogEvents, kind) {
		return
	}
	var policy config.LogPolicy
	var lf *logstore.LogFile
	var err error
	if isChannelName(destination) {
		policy = class.ChanLog
		if !policy.Enabled || (!policy.Always && !session.IsAttached()) {
			return
		}
		lf, err = session.Logs.ChannelLog(ircproto.Lower(destination), policy.MaxSize)
	} else {
		policy = class.PrivateLog
		if !policy.Enabled || (!policy.Always && !session.IsAttached()) {
			return
		}
		lf, err = session.Logs.PrivateLog(policy.MaxSize)
	}
	if err != nil || lf == nil {
		return
	}
	lf.Append(logstore.Entry{Time: time.Now(), Kind: kind, Destination: destination, Source: source, Text: text})
}

// recordServerEvent appends a non-message line (a notable event rather than
// a PRIVMSG/NOTICE/CTCP) to the session-wide server log, also gated by
// log_events.
func recordServerEvent(session *Session, class *config.ConnectionClass, kind, text string) {
	if class == nil || session.Logs == nil || !class.ServerLog.Enabled || !logEventAllowed(class.LogEvents, kind) {
		return
	}
	if !class.ServerLog.Always && !session.IsAttached() {
		return
	}
	lf, err := session.Logs.ServerLog(class.ServerLog.MaxSize)
	if err != nil {
		return
	}
	lf.Append(logstore.Entry{Time: time.Now(), Kind: kind, Destination: session.Nickname, Source: "dircproxy", Text: text})
}

// logInboundMessage records a server-to-client PRIVMSG/NOTICE's plain text
// and any CTCP payloads against the appropriate log (spec.md §4.5; CTCP
// payloads are stripped from the plain-text entry and logged separately,
// mirroring original_source/src/irc_server.c's PRIVMSG/NOTICE handling).
func logInboundMessage(session *Session, msg ircproto.Message) {
	plain, ctcps := ircproto.SplitCTCP(msg.Params[1])
	if strings.TrimSpace(plain) != "" {
		recordMessage(session, session.Class, msg.Command, msg.Params[0], msg.Source, plain)
	}
	for _, c := range ctcps {
		recordMessage(session, session.Class, "CTCP", msg.Params[0], msg.Source, strings.TrimSpace(strings.Join(append([]string{c.Command}, c.Params...), " ")))
	}
}

// logOutboundMessage is logInboundMessage's client-to-server counterpart,
// logged with the client's own hostmask as source.
func logOutboundMessage(session *Session, command string, params []string) {
	if len(params) < 2 {
		return
	}
	plain, ctcps := ircproto.SplitCTCP(params[1])
	source := session.Hostmask()
	if strings.TrimSpace(plain) != "" {
		recordMessage(session, session.Class, command, params[0], source, plain)
	}
	for _, c := range ctcps {
		recordMessage(session, session.Class, "CTCP", params[0], source, strings.TrimSpace(strings.Join(append([]string{c.Command}, c.Params...), " ")))
	}
}

// replayRecall sends each enabled log namespace's trailing entries to a
// freshly attached client (spec.md §4.5 "Autorecall is triggered
// per-context on attach"): server log as NOTICEs to the user's nick,
// per-channel logs addressed to the channel, private log to the user's nick.
func replayRecall(session *Session, class *config.ConnectionClass, clientSock *netio.Socket) {
	if class == nil || clientSock == nil || session.Logs == nil {
		return
	}
	now := time.Now()

	if class.ServerLog.Enabled {
		if lf, err := session.Logs.ServerLog(class.ServerLog.MaxSize); err == nil {
			deliverRecall(clientSock, lf, class.ServerLog.RecallCount(class.ServerLog.Always), session.Nickname, now)
		}
	}
	if class.PrivateLog.Enabled {
		if lf, err := session.Logs.PrivateLog(class.PrivateLog.MaxSize); err == nil {
			deliverRecall(clientSock, lf, class.PrivateLog.RecallCount(class.PrivateLog.Always), session.Nickname, now)
		}
	}
	if class.ChanLog.Enabled {
		for _, ch := range session.Channels.Joined() {
			ch.mu.Lock()
			name, folded := ch.Name, ircproto.Lower(ch.Name)
			ch.mu.Unlock()
			if lf, err := session.Logs.ChannelLog(folded, class.ChanLog.MaxSize); err == nil {
				deliverRecall(clientSock, lf, class.ChanLog.RecallCount(class.ChanLog.Always), name, now)
			}
		}
	}
}

// deliverRecall replays one LogFile's recent entries to target (a nick or
// channel name): message-kind entries are resent as synthetic
// PRIVMSG/NOTICE/CTCP lines from their stored source, everything else is a
// bouncer NOTICE (spec.md §4.5).
func deliverRecall(clientSock *netio.Socket, lf *logstore.LogFile, maxLines int, target string, now time.Time) {
	if maxLines == 0 {
		return
	}
	lines, err := lf.Recall(logstore.RecallOptions{MaxLines: maxLines, Now: now})
	if err != nil {
		return
	}
	for _, rl := range lines {
		text := rl.Timestamp + " " + rl.Entry.Text
		if !rl.Entry.IsMessage() {
			clientSock.Write(ircproto.Format("dircproxy", "NOTICE", target, text))
			continue
		}
		source := rl.Entry.Source
		if source == "" {
			source = "dircproxy"
		}
		switch rl.Entry.Kind {
		case "NOTICE":
			clientSock.Write(ircproto.Format(source, "NOTICE", target, text))
		case "CTCP":
			clientSock.Write(ircproto.Format(source, "PRIVMSG", target, "\x01"+text+"\x01"))
		default:
			clientSock.Write(ircproto.Format(source, "PRIVMSG", target, text))
		}
	}
}
