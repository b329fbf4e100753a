package bouncer

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/presbrey/dircproxy/internal/ircproto"
)

// Registry is the session-lookup surface (spec.md §3 "Listener & session
// registry"): one session per bound ConnectionClass. Lookup by nickname
// (ByNick) scans the bound sessions; there is no lookup by client host.
type Registry struct {
	mu      sync.RWMutex
	byClass map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byClass: make(map[string]*Session)}
}

// Lookup returns the session currently bound to a class name, if any.
func (r *Registry) Lookup(className string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byClass[className]
	return s, ok
}

// Bind associates a session with its ConnectionClass's name, evicting any
// previous holder (the caller is responsible for having already decided,
// per disconnect_existing_user, that eviction is the right policy).
func (r *Registry) Bind(className string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byClass[className] = s
}

// Unbind removes the session owning className, if it is still s (a stale
// unbind from an already-superseded session is a no-op).
func (r *Registry) Unbind(className string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byClass[className]; ok && cur == s {
		delete(r.byClass, className)
	}
}

// ByNick finds the live session currently using nick (case-folded),
// for /DIRCPROXY KILL.
func (r *Registry) ByNick(nick string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byClass {
		s.mu.RLock()
		match := ircproto.EqualFold(s.Nickname, nick)
		s.mu.RUnlock()
		if match {
			return s, true
		}
	}
	return nil, false
}

// Count reports how many sessions are currently bound, for adminhttp's
// /healthz response.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClass)
}

// All returns every currently bound session, for /DIRCPROXY USERS/STATUS.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byClass))
	for _, s := range r.byClass {
		out = append(out, s)
	}
	return out
}

// Listener accepts incoming client TCP connections and hands each to
// Handler for the registration handshake (spec.md §3 "Listener & session
// registry", §4.3 Lifecycle).
type Listener struct {
	ln      net.Listener
	Handler func(net.Conn)

	limiter *rate.Limiter
}

// Listen opens the bouncer's client-facing listen socket.
func Listen(addr string, handler func(net.Conn)) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bouncer: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, Handler: handler}, nil
}

// SetAcceptLimit bounds how fast new connections are handed to Handler, a
// flood guard independent of any per-session throttle_* policy: a burst of
// connect attempts queues in the kernel's accept backlog rather than
// spawning a registration goroutine per attempt.
func (l *Listener) SetAcceptLimit(r rate.Limit, burst int) {
	l.limiter = rate.NewLimiter(r, burst)
}

// Serve accepts connections until the listener is closed.
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(context.Background()); err != nil {
				conn.Close()
				continue
			}
		}
		go l.Handler(conn)
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr is the bound listen address (useful when Listen was given port 0).
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
