package bouncer

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/dcc"
	"github.com/presbrey/dircproxy/internal/ircproto"
	"github.com/presbrey/dircproxy/internal/netio"
	"github.com/presbrey/dircproxy/internal/resolver"
)

// Deps bundles the shared services one running bouncer process hands to
// every accepted connection (spec.md §4.3 "Lifecycle"): the timer and DNS
// services are process-wide, the registry tracks one Session per class.
type Deps struct {
	Classes        []*config.ConnectionClass
	Verifier       config.Verifier
	Registry       *Registry
	Timers         *netio.Timers
	Resolver       *resolver.Resolver
	ConnectTimeout time.Duration
	Logger         *log.Logger
}

// HandleClientConn drives one accepted client connection for its entire
// life: registration, attach, steady-state forwarding, and detach on
// disconnect. It returns once the client socket has closed.
func HandleClientConn(conn net.Conn, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	clientHost, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	var reg Registration
	var session *Session
	var clientSock *netio.Socket
	closed := make(chan struct{})
	registered := make(chan struct{})

	// Reverse-DNS of the client address runs concurrently with the
	// PASS/NICK/USER exchange (spec.md §4.3 Lifecycle: "reverse-DNS of
	// client address → auth exchange"); resolvedHost is only read after
	// resolveDone closes, so the channel close is the happens-before edge
	// between the resolver goroutine and onActivity.
	var resolvedHost string
	resolveDone := make(chan struct{})
	if deps.Resolver != nil {
		owner := connOwner{closed: closed}
		deps.Resolver.ResolveAddr(owner, clientHost, func(res resolver.HostResult) {
			if len(res.Names) > 0 {
				resolvedHost = strings.TrimSuffix(res.Names[0], ".")
			}
			close(resolveDone)
		})
	} else {
		close(resolveDone)
	}

	onActivity := func(line string) {
		msg, ok := ircproto.Parse(line)
		if !ok {
			return
		}

		if session == nil {
			if reg.Feed(msg.Command, msg.Params); !reg.Complete() {
				return
			}
			select {
			case <-resolveDone:
			case <-time.After(250 * time.Millisecond):
			}
			var err error
			session, err = registerSession(reg, clientHost, resolvedHost, clientSock, deps)
			if err != nil {
				clientSock.Write(ircproto.Format("dircproxy", "464", reg.Nick, "Password incorrect"))
				clientSock.CloseNow()
				return
			}
			close(registered)
			return
		}

		dispatchClientMessage(session, deps, msg, line)
	}

	onError := func(kind netio.ErrorKind, err error) {
		close(closed)
		if session != nil {
			detachSession(session, deps, logger)
		}
	}

	clientSock = netio.NewSocket(conn, onActivity, onError)

	select {
	case <-registered:
	case <-closed:
		return
	case <-time.After(deps.ConnectTimeout):
		clientSock.Write("ERROR :Closing Link: registration timed out")
		clientSock.CloseNow()
		return
	}
	<-closed
}

// registerSession authenticates a completed Registration against the
// configured classes, binds (or re-attaches) its Session, and dials the
// backend server on first attach (spec.md §4.3 "Registration"/"Attach").
func registerSession(reg Registration, clientHost, resolvedHost string, clientSock *netio.Socket, deps Deps) (*Session, error) {
	class, err := Authenticate(deps.Classes, deps.Verifier, reg, clientHost, resolvedHost)
	if err != nil {
		return nil, err
	}

	session, existed := deps.Registry.Lookup(class.Name)
	if !existed {
		session = NewSession(clientHost)
		session.Class = class
		session.Logs = NewSessionLogsWithProgram(class.LogDir, class.LogProgram)
		if class.InitialModes != "" {
			session.Modes = applyModeChange(session.Modes, class.InitialModes)
		}
		deps.Registry.Bind(class.Name, session)
	} else if class.DisconnectExistingUser {
		session.mu.Lock()
		old := session.ClientSocket
		session.mu.Unlock()
		if old != nil {
			old.Write(ircproto.Format("dircproxy", "NOTICE", session.Nickname, "Disconnected: another client attached"))
			old.CloseNow()
		}
	}

	session.mu.Lock()
	session.ClientSocket = clientSock
	if resolvedHost != "" {
		session.ResolvedHost = resolvedHost
	}
	session.mu.Unlock()

	correctedNick := session.Attach(reg)
	session.mu.Lock()
	session.ClientStatus |= ClientGotNickConfirmed
	session.mu.Unlock()

	runAttachSequence(session, class)

	if correctedNick != "" {
		clientSock.Write(ircproto.Format(reg.Nick+"!"+reg.User+"@"+clientHost, "NICK", correctedNick))
	}
	session.ArmNickGuard(deps.Timers, func(nick string) {
		resendNickToServer(session, nick)
	})
	replayRecall(session, class, clientSock)

	clientSock.Write(ircproto.Format("dircproxy", "001", session.Nickname, "Welcome to dircproxy"))
	for _, l := range BuildMOTD(session) {
		clientSock.Write(ircproto.Format("dircproxy", "372", session.Nickname, l))
	}

	if session.ServerSocket == nil {
		if err := dialServer(session, deps); err != nil {
			if clientSock != nil {
				clientSock.Write(fmt.Sprintf("NOTICE %s :unable to reach server: %s", session.Nickname, err))
			}
			deps.Timers.Add(session, "server_recon", session.Recon.NextDelay(session.Class), func() {
				reconnectAttempt(session, deps)
			})
		}
	}
	return session, nil
}

func dialServer(session *Session, deps Deps) error {
	spec := session.Class.NextServerSpec()
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
	dialer := net.Dialer{Timeout: deps.ConnectTimeout}
	if session.Class.LocalAddress != "" {
		if ip := net.ParseIP(session.Class.LocalAddress); ip != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		}
	}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		session.Recon.RecordAttempt()
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	session.mu.Lock()
	session.ServerStatus = ServerCreated | ServerConnected
	session.mu.Unlock()

	serverSock := netio.NewSocket(conn, func(line string) {
		handleServerLine(session, deps, line)
	}, func(kind netio.ErrorKind, err error) {
		if deps.Logger != nil {
			deps.Logger.Printf("[%s] server link lost: %v", session.Nickname, err)
		}
		onServerLost(session, deps)
	})

	session.mu.Lock()
	session.ServerSocket = serverSock
	session.mu.Unlock()

	if spec.Password != "" {
		serverSock.Write(ircproto.Format("", "PASS", spec.Password))
	}
	serverSock.Write(ircproto.Format("", "NICK", session.Nickname))
	serverSock.Write(ircproto.Format("", "USER", session.Username, "0", "*", session.Realname))
	session.mu.Lock()
	session.ServerStatus |= ServerIntroduced
	session.mu.Unlock()
	return nil
}

// onServerLost runs spec.md §4.3's reconnect-policy entry point: every live
// channel is PARTed to the client (so later JOINs after reconnect aren't
// confused with a server that never lost them), the per-connection timers
// are dropped, and a server_recon timer is armed to drive the retry/cycle/
// give-up sequence.
func onServerLost(session *Session, deps Deps) {
	session.mu.Lock()
	session.ServerStatus = 0
	sock := session.ServerSocket
	session.ServerSocket = nil
	clientSock := session.ClientSocket
	nick := session.Nickname
	session.mu.Unlock()
	if sock != nil {
		sock.CloseNow()
	}

	deps.Timers.Del(session, timerPing)
	deps.Timers.Del(session, timerStoned)
	deps.Timers.Del(session, timerAntiidle)

	if clientSock != nil {
		for _, ch := range session.Channels.Joined() {
			ch.mu.Lock()
			name := ch.Name
			ch.mu.Unlock()
			clientSock.Write(ircproto.Format(nick+"!"+session.Username+"@"+session.ClientHost, "PART", name))
		}
	}

	deps.Timers.Add(session, "server_recon", session.Recon.NextDelay(session.Class), func() {
		reconnectAttempt(session, deps)
	})
}

// reconnectAttempt fires when server_recon expires: it enforces the
// maxattempts/maxinitattempts give-up policy, otherwise advances the
// server cursor and tries again (spec.md §4.3 "Reconnect policy", §8
// scenario 2).
func reconnectAttempt(session *Session, deps Deps) {
	session.mu.RLock()
	class := session.Class
	clientSock := session.ClientSocket
	nick := session.Nickname
	session.mu.RUnlock()

	if !session.Recon.ShouldRetry(class) {
		if clientSock != nil {
			clientSock.Write(ircproto.Format("dircproxy", "NOTICE", nick, "Maximum initial connection attempts exceeded"))
			clientSock.Write("ERROR :Closing Link: maximum connection attempts exceeded")
			clientSock.CloseNow()
		}
		session.MarkDead()
		deps.Registry.Unbind(class.Name, session)
		deps.Timers.DelAll(session)
		return
	}

	if err := dialServer(session, deps); err != nil {
		deps.Timers.Add(session, "server_recon", session.Recon.NextDelay(class), func() {
			reconnectAttempt(session, deps)
		})
	}
}

// dispatchClientMessage routes one post-registration line from the client:
// /DIRCPROXY admin commands are intercepted, everything else is gated by
// invariant 4 and forwarded to the server socket (spec.md §4.3, §5
// invariant 4).
func dispatchClientMessage(session *Session, deps Deps, msg ircproto.Message, raw string) {
	session.mu.RLock()
	clientSock := session.ClientSocket
	class := session.Class
	session.mu.RUnlock()

	if msg.Command == "PRIVMSG" && len(msg.Params) > 0 && strings.EqualFold(msg.Params[0], "dircproxy") {
		text := ""
		if len(msg.Params) > 1 {
			text = msg.Params[1]
		}
		ctx := AdminContext{
			Session:  session,
			Registry: deps.Registry,
			Reply: func(reply string) {
				if clientSock != nil {
					clientSock.Write(ircproto.Format("dircproxy", "NOTICE", session.Nickname, reply))
				}
			},
		}
		if err := Dispatch(&ctx, text); err != nil && clientSock != nil {
			clientSock.Write(ircproto.Format("dircproxy", "NOTICE", session.Nickname, err.Error()))
		}
		return
	}

	if msg.Command == "PING" {
		session.mu.Lock()
		session.AllowPong = true
		session.mu.Unlock()
	}
	if msg.Command == "MOTD" {
		session.mu.Lock()
		session.AllowMOTD = true
		session.mu.Unlock()
	}

	if msg.Command == "PRIVMSG" || msg.Command == "NOTICE" {
		session.RearmAntiidleOnClientActivity(deps.Timers, class.IdleMaxtime, func(line string) {
			session.mu.RLock()
			sock := session.ServerSocket
			session.mu.RUnlock()
			if sock != nil {
				sock.Write(line)
			}
		})
		logOutboundMessage(session, msg.Command, msg.Params)
	}

	if !session.CanForwardToServer() {
		return
	}
	session.mu.RLock()
	serverSock := session.ServerSocket
	session.mu.RUnlock()
	if serverSock == nil {
		return
	}

	if (msg.Command == "PRIVMSG" || msg.Command == "NOTICE") && class.DCCProxyOutgoing && len(msg.Params) >= 2 {
		rewritten, err := RewriteDCC(msg.Params[1], RewriteOptions{
			LocalAddr:       localIP(serverSock.LocalAddr()),
			Ports:           dcc.PortRange{Low: class.DCCProxyPortLow, High: class.DCCProxyPortHigh},
			Timeout:         class.DCCProxyTimeout,
			CaptureDir:      class.DCCCaptureDirectory,
			CaptureAlways:   class.DCCCaptureAlways,
			CaptureWithNick: class.DCCCaptureWithNick,
			CaptureMax:      class.DCCCaptureMaxSize,
			HaveClient:      true,
			SendFast:        class.DCCSendFast,
			Resumes:         session.Resumes,
			OnRejectText: func(text string) {
				if !class.DCCProxySendReject || clientSock == nil {
					return
				}
				clientSock.Write(ircproto.Format("dircproxy", "PRIVMSG", msg.Params[0], ircproto.FormatCTCP("DCC", "REJECT", text)))
			},
		})
		if err == nil && rewritten.Text != msg.Params[1] {
			serverSock.Write(ircproto.Format("", msg.Command, msg.Params[0], rewritten.Text))
			return
		}
	}

	serverSock.Write(raw)
}

// connOwner adapts HandleClientConn's pre-session closed channel to
// resolver.Owner, so the reverse-DNS lookup started before a Session exists
// still stops delivering once the client connection is gone.
type connOwner struct {
	closed <-chan struct{}
}

func (o connOwner) Alive() bool {
	select {
	case <-o.closed:
		return false
	default:
		return true
	}
}

// localIP extracts the IP portion of a net.Addr (getsockname), used to
// rewrite outgoing DCC offers with the bouncer's own externally visible
// address (spec.md §4.3 "CTCP/DCC rewriting (outgoing)", §8 scenario 5).
func localIP(addr net.Addr) net.IP {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// handleServerLine processes one line arriving from the real IRC server
// (spec.md §4.3's server-side half of the forwarding pipeline).
func handleServerLine(session *Session, deps Deps, line string) {
	msg, ok := ircproto.Parse(line)
	if !ok {
		return
	}

	switch msg.Command {
	case "001":
		session.HandleWelcome(func(name, key string) {
			session.mu.RLock()
			sock := session.ServerSocket
			session.mu.RUnlock()
			if sock == nil {
				return
			}
			if key != "" {
				sock.Write(ircproto.Format("", "JOIN", name, key))
			} else {
				sock.Write(ircproto.Format("", "JOIN", name))
			}
		})
		session.mu.RLock()
		pingTimeout := session.Class.PingTimeout
		session.mu.RUnlock()
		session.ArmActiveTimers(deps.Timers, pingTimeout, func(l string) {
			session.mu.RLock()
			sock := session.ServerSocket
			session.mu.RUnlock()
			if sock != nil {
				sock.Write(l)
			}
		}, func() {
			session.mu.Lock()
			session.ServerStatus |= ServerStoned
			sock := session.ServerSocket
			session.mu.Unlock()
			if sock != nil {
				sock.CloseNow()
			}
		})
	case "PING":
		session.mu.RLock()
		sock := session.ServerSocket
		session.mu.RUnlock()
		if sock != nil {
			sock.Write(ircproto.Format("", "PONG", msg.Params...))
		}
		return
	case "PONG":
		session.mu.Lock()
		pingTimeout := session.Class.PingTimeout
		allowPong := session.AllowPong
		session.AllowPong = false
		session.mu.Unlock()
		session.OnPong(deps.Timers, pingTimeout, func() {})
		if !allowPong {
			return
		}
	case "372", "375":
		session.mu.RLock()
		allowMOTD := session.AllowMOTD
		session.mu.RUnlock()
		if !allowMOTD {
			return
		}
	case "411":
		session.mu.Lock()
		drop := session.SquelchNext411
		session.SquelchNext411 = false
		session.mu.Unlock()
		if drop {
			return
		}
	case "431", "432", "433", "436", "438":
		param0 := ""
		if len(msg.Params) > 0 {
			param0 = msg.Params[0]
		}
		passthrough := session.HandleNickError(msg.Command, param0, func(nick string) {
			resendNickToServer(session, nick)
		})
		session.ArmNickGuard(deps.Timers, func(nick string) {
			resendNickToServer(session, nick)
		})
		if !passthrough {
			return
		}
	case "437":
		target := ""
		if len(msg.Params) > 1 {
			target = msg.Params[1]
		} else if len(msg.Params) > 0 {
			target = msg.Params[0]
		}
		if isChannelName(target) {
			session.mu.RLock()
			attached := session.ClientSocket != nil
			class := session.Class
			session.mu.RUnlock()
			folded := ircproto.Lower(target)
			if attached {
				session.Channels.Remove(folded)
			} else if session.Channels.MarkInactive(folded) && class != nil && class.ChannelRejoin > 0 {
				armChannelRejoin(session, deps, folded, target)
			}
			return
		}
		param0 := ""
		if len(msg.Params) > 0 {
			param0 = msg.Params[0]
		}
		passthrough := session.HandleNickError("433", param0, func(nick string) {
			resendNickToServer(session, nick)
		})
		session.ArmNickGuard(deps.Timers, func(nick string) {
			resendNickToServer(session, nick)
		})
		if !passthrough {
			return
		}
	case "NICK":
		session.mu.Lock()
		self := len(msg.Params) > 0 && ircproto.EqualFold(ircproto.Nick(msg.Source), session.Nickname)
		var class *config.ConnectionClass
		var newNick string
		var wasGuardRetry bool
		if self {
			wasGuardRetry = session.Nickname != session.SetNickname
			newNick = msg.Params[0]
			session.Nickname = newNick
			class = session.Class
		}
		session.mu.Unlock()
		if self {
			recordServerEvent(session, class, "NICK", fmt.Sprintf("You are now known as %s", newNick))
		}
		if ShouldSquelchSelfEcho("NICK", self, wasGuardRetry, false) {
			return
		}
	case "MODE":
		if len(msg.Params) < 2 {
			break
		}
		session.mu.Lock()
		personal := ircproto.EqualFold(msg.Params[0], session.Nickname)
		if personal {
			for _, change := range msg.Params[1:] {
				session.Modes = applyModeChange(session.Modes, change)
			}
		}
		modes, refuse, sock, class := session.Modes, session.Class.RefuseModes, session.ServerSocket, session.Class
		session.mu.Unlock()
		if personal {
			recordServerEvent(session, class, "MODE", fmt.Sprintf("Your mode was changed: %s", modes))
		}
		if personal && refuse != "" && modesIntersect(modes, refuse) {
			if sock != nil {
				sock.Write(ircproto.Format("", "QUIT", fmt.Sprintf("Don't like this server - %s", modes)))
				session.mu.Lock()
				session.Modes = dropModeChars(session.Modes, refuse)
				session.mu.Unlock()
				sock.CloseNow()
			}
			return
		}
		if ShouldSquelchSelfEcho("MODE", personal, false, false) {
			return
		}
	case "JOIN":
		if len(msg.Params) == 0 {
			break
		}
		name := msg.Params[0]
		session.mu.RLock()
		self := ircproto.EqualFold(ircproto.Nick(msg.Source), session.Nickname)
		sock := session.ServerSocket
		session.mu.RUnlock()
		var wasInactive bool
		if self {
			folded := ircproto.Lower(name)
			if ch, ok := session.Channels.Get(folded); ok {
				ch.mu.Lock()
				wasInactive = ch.Inactive
				ch.mu.Unlock()
			}
			session.Channels.Join(folded, name, "")
			if sock != nil {
				sock.Write(ircproto.Format("", "MODE", name))
			}
		}
		if ShouldSquelchSelfEcho("JOIN", self, wasInactive, false) {
			return
		}
	case "PART":
		if len(msg.Params) == 0 {
			break
		}
		name := msg.Params[0]
		session.mu.RLock()
		self := ircproto.EqualFold(ircproto.Nick(msg.Source), session.Nickname)
		session.mu.RUnlock()
		if self {
			session.Channels.Remove(ircproto.Lower(name))
		}
		if ShouldSquelchSelfEcho("PART", self, false, false) {
			return
		}
	case "KICK":
		if len(msg.Params) < 2 {
			break
		}
		name := msg.Params[0]
		session.mu.RLock()
		self := ircproto.EqualFold(msg.Params[1], session.Nickname)
		attached := session.ClientSocket != nil
		class := session.Class
		session.mu.RUnlock()
		if self {
			reason := ""
			if len(msg.Params) > 2 {
				reason = msg.Params[2]
			}
			recordServerEvent(session, class, "KICK", fmt.Sprintf("You were kicked from %s by %s (%s)", name, ircproto.Nick(msg.Source), reason))
			folded := ircproto.Lower(name)
			if attached {
				session.Channels.Remove(folded)
			} else if session.Channels.MarkInactive(folded) && class != nil && class.ChannelRejoin > 0 {
				armChannelRejoin(session, deps, folded, name)
			}
		}
		if ShouldSquelchSelfEcho("KICK", self, false, false) {
			return
		}
	case "471", "473", "474":
		if len(msg.Params) < 2 {
			break
		}
		name := msg.Params[1]
		session.mu.RLock()
		attached := session.ClientSocket != nil
		class := session.Class
		session.mu.RUnlock()
		folded := ircproto.Lower(name)
		if attached {
			session.Channels.Remove(folded)
		} else if session.Channels.MarkInactive(folded) && class != nil && class.ChannelRejoin > 0 {
			armChannelRejoin(session, deps, folded, name)
		}
	case "403", "405", "475", "476":
		if len(msg.Params) < 2 {
			break
		}
		name := msg.Params[1]
		session.mu.RLock()
		attached := session.ClientSocket != nil
		session.mu.RUnlock()
		folded := ircproto.Lower(name)
		if attached {
			session.Channels.Remove(folded)
		} else {
			session.Channels.MarkInactive(folded)
		}
	case "376", "422":
		session.mu.Lock()
		modes := session.Modes
		away := session.AwayMessage
		sock := session.ServerSocket
		allowMOTD := session.AllowMOTD
		session.AllowMOTD = false
		session.mu.Unlock()
		if sock != nil {
			if modes != "" {
				sock.Write(ircproto.Format("", "MODE", session.Nickname, "+"+modes))
			}
			if away != "" {
				sock.Write(ircproto.Format("", "AWAY", away))
			}
		}
		if !allowMOTD {
			return
		}
	case "324", "477":
		if len(msg.Params) < 2 {
			break
		}
		if session.ShouldSquelchChannelModes(ircproto.Lower(msg.Params[1])) {
			return
		}
	case "PRIVMSG", "NOTICE":
		if len(msg.Params) >= 2 {
			acceptDCCResume(session, msg)
			nick := ircproto.Nick(msg.Source)
			rewritten, err := RewriteDCC(msg.Params[1], RewriteOptions{
				SourceNick:      nick,
				Timeout:         session.Class.DCCProxyTimeout,
				Ports:           dcc.PortRange{Low: session.Class.DCCProxyPortLow, High: session.Class.DCCProxyPortHigh},
				CaptureDir:      session.Class.DCCCaptureDirectory,
				CaptureAlways:   session.Class.DCCCaptureAlways,
				CaptureWithNick: session.Class.DCCCaptureWithNick,
				CaptureMax:      session.Class.DCCCaptureMaxSize,
				HaveClient:      session.IsAttached(),
				SendFast:        session.Class.DCCSendFast,
				Resumes:         session.Resumes,
				OnResumeOffer: func(filename string, port int, offset int64) {
					session.mu.RLock()
					sock := session.ServerSocket
					session.mu.RUnlock()
					if sock != nil {
						sock.Write(ircproto.Format("", "PRIVMSG", nick, ircproto.FormatResume(filename, port, offset)))
					}
				},
			})
			if err == nil && rewritten.Text != msg.Params[1] {
				line = ircproto.Format(msg.Source, msg.Command, msg.Params[0], rewritten.Text)
			}
			logInboundMessage(session, msg)
			replyToCannedCTCP(session, msg)
		}
	}

	if !session.CanForwardToClient() {
		return
	}
	session.mu.RLock()
	sock := session.ClientSocket
	session.mu.RUnlock()
	if sock != nil {
		sock.Write(line)
	}
}

// resendNickToServer writes a bare NICK change request to the server
// socket, the common retry action both HandleNickError's automatic
// regeneration and the nick_keep guard timer need.
func resendNickToServer(session *Session, nick string) {
	session.mu.RLock()
	sock := session.ServerSocket
	session.mu.RUnlock()
	if sock != nil {
		sock.Write(ircproto.Format("", "NICK", nick))
	}
}

// armChannelRejoin starts the channel_rejoin timer for one channel we
// believe we've lost while unattended (KICK or 471/473/474 with no client
// attached), per-channel named so a second loss doesn't restart the clock
// (spec.md §4.3 "Channel tracking", §5 once-in-flight guard).
func armChannelRejoin(session *Session, deps Deps, folded, name string) {
	deps.Timers.Add(session, "channel_rejoin:"+folded, session.Class.ChannelRejoin, func() {
		ch, ok := session.Channels.Get(folded)
		if !ok {
			return
		}
		ch.mu.Lock()
		inactive, key := ch.Inactive, ch.Key
		ch.mu.Unlock()
		if !inactive {
			return
		}
		session.mu.RLock()
		sock := session.ServerSocket
		active := session.ServerStatus.Has(ServerActive)
		session.mu.RUnlock()
		if sock == nil || !active {
			return
		}
		if key != "" {
			sock.Write(ircproto.Format("", "JOIN", name, key))
		} else {
			sock.Write(ircproto.Format("", "JOIN", name))
		}
	})
}

// detachSession runs the detach-path bookkeeping once the client socket
// has gone away, leaving the server connection and session state intact
// for a later reattach (spec.md §4.3 "Detach path").
func detachSession(session *Session, deps Deps, logger *log.Logger) {
	recordServerEvent(session, session.Class, "DETACH", "You disconnected")
	runDetachSequence(session, session.Class)
	session.Detach(session.Class)
	logger.Printf("[%s] client detached", session.Nickname)
}
