package bouncer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/dcc"
	"github.com/presbrey/dircproxy/internal/logstore"
	"github.com/presbrey/dircproxy/internal/netio"
)

// Session is the per-client proxy (spec.md §3 Session): it owns one
// client socket and one server socket plus their state bits, identity,
// channel set, log handles, and reconnection policy.
type Session struct {
	mu sync.RWMutex

	// SessionID is a process-lifetime identifier for correlating this
	// session's log lines and /DIRCPROXY STATUS snapshots across attach
	// and detach cycles; it is never sent on the wire to IRC peers.
	SessionID string

	Class *config.ConnectionClass

	// Identity (spec.md §3).
	Nickname      string // live
	SetNickname   string // what the client last asked for
	OldNickname   string // stashed at detach, restored on reattach
	Username      string
	Hostname      string
	Realname      string
	Modes         string // sorted set of active user-mode letters
	AwayMessage   string
	ClientHost    string // the connecting client's numeric address
	ResolvedHost  string // reverse-DNS result, if any

	ClientStatus ClientStatus
	ServerStatus ServerStatus

	// Dynamic flags (spec.md §3).
	AllowMOTD       bool
	AllowPong       bool
	SquelchNext411  bool
	ExpectingNick   bool

	Channels *Channels
	Logs     *SessionLogs

	ClientSocket *netio.Socket
	ServerSocket *netio.Socket

	Recon ReconnectState

	Resumes *dcc.ResumeRegistry

	createdAt time.Time
	dead      bool
}

// SessionLogs bundles the three log namespaces a session owns (spec.md §3
// "owned Channel/LogFile collections"): one server-wide log, one
// private-message log, and per-channel logs created lazily on first
// activity.
type SessionLogs struct {
	mu      sync.Mutex
	Server  *logstore.LogFile
	Private *logstore.LogFile
	byChan  map[string]*logstore.LogFile
	dir     string
	program string
}

// NewSessionLogs prepares the log bundle; no files are opened until first
// use (spec.md §4.5: "always-off" logs only open when attach demands it).
// No log_program is attached; NewSessionLogsWithProgram adds one.
func NewSessionLogs(dir string) *SessionLogs {
	return &SessionLogs{dir: dir, byChan: make(map[string]*logstore.LogFile)}
}

// NewSessionLogsWithProgram is NewSessionLogs plus a log_program command
// every log file opened through this bundle also pipes its lines to.
func NewSessionLogsWithProgram(dir, program string) *SessionLogs {
	l := NewSessionLogs(dir)
	l.program = program
	return l
}

// attachProgram wires the configured log_program sink onto a freshly
// opened log file, if one is configured.
func (l *SessionLogs) attachProgram(lf *logstore.LogFile) *logstore.LogFile {
	if l.program != "" {
		lf.Program = logstore.NewProgramSink(l.program)
	}
	return lf
}

// ServerLog lazily opens (or returns) the session-wide server log.
func (l *SessionLogs) ServerLog(maxLines int) (*logstore.LogFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Server != nil {
		return l.Server, nil
	}
	lf, err := logstore.Open(l.dir+"/server.log", maxLines)
	if err != nil {
		return nil, err
	}
	l.Server = l.attachProgram(lf)
	return l.Server, nil
}

// PrivateLog lazily opens (or returns) the private-message log.
func (l *SessionLogs) PrivateLog(maxLines int) (*logstore.LogFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Private != nil {
		return l.Private, nil
	}
	lf, err := logstore.Open(l.dir+"/private.log", maxLines)
	if err != nil {
		return nil, err
	}
	l.Private = l.attachProgram(lf)
	return l.Private, nil
}

// ChannelLog lazily opens (or returns) the log file for a channel.
func (l *SessionLogs) ChannelLog(foldedName string, maxLines int) (*logstore.LogFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lf, ok := l.byChan[foldedName]; ok {
		return lf, nil
	}
	lf, err := logstore.Open(l.dir+"/"+sanitizeLogName(foldedName)+".log", maxLines)
	if err != nil {
		return nil, err
	}
	lf = l.attachProgram(lf)
	l.byChan[foldedName] = lf
	return lf, nil
}

func sanitizeLogName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// NewSession constructs an unauthenticated session immediately after
// accept (spec.md §3 Lifecycle: "session created with both status
// bitmasks zero").
func NewSession(clientHost string) *Session {
	return &Session{
		SessionID:  uuid.NewString(),
		ClientHost: clientHost,
		Channels:   NewChannels(),
		Resumes:    dcc.NewResumeRegistry(),
		createdAt:  time.Now(),
	}
}

// Alive implements netio.Owner and resolver.Owner: once a session is
// reaped, no late timer or DNS callback may act on its behalf (spec.md §5
// invariant 6).
func (s *Session) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.dead
}

// MarkDead flags the session for reaping; idempotent.
func (s *Session) MarkDead() {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
}

// IsAttached reports whether a client socket currently holds this session.
func (s *Session) IsAttached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClientSocket != nil
}

// CanForwardToClient implements spec.md §3 invariant 4's first half: no
// traffic reaches the client until its nickname has been confirmed.
func (s *Session) CanForwardToClient() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClientSocket != nil && s.ClientStatus.Has(ClientGotNickConfirmed)
}

// CanForwardToServer implements spec.md §3 invariant 4's second half: once
// the server connection isn't ACTIVE, only /DIRCPROXY commands may still
// reach it.
func (s *Session) CanForwardToServer() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ServerStatus.Has(ServerActive)
}

// Hostmask renders the nick!user@host triple the server and other clients
// see for this session.
func (s *Session) Hostmask() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host := s.ResolvedHost
	if host == "" {
		host = s.ClientHost
	}
	return s.Nickname + "!" + s.Username + "@" + host
}
