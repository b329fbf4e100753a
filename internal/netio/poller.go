package netio

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind distinguishes the three socket roles spec.md §4.1 enumerates.
type Kind int

const (
	KindNormal Kind = iota
	KindConnecting
	KindListening
)

// AcceptFunc is invoked when a listening socket becomes ready; accepting
// happens inside the callback, per spec.md §4.1.
type AcceptFunc func(net.Conn)

// Poller is the event-loop-shaped coordinator described in spec.md §4.1.
// Individual sockets already run their own read/write goroutines (see
// socket.go); Poller's remaining job is the one spec.md assigns it beyond
// per-socket I/O: periodic throttle-window resets, and an orderly
// shut_down that gives sockets a chance to flush before being force-closed.
type Poller struct {
	mu        sync.Mutex
	sockets   map[*Socket]struct{}
	listeners map[net.Listener]AcceptFunc

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Poller.
func New() *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &Poller{
		sockets:   make(map[*Socket]struct{}),
		listeners: make(map[net.Listener]AcceptFunc),
		group:     g,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register tracks a socket so its throttle window is periodically reset
// and so Shutdown can wait for / force its drain.
func (p *Poller) Register(s *Socket, kind Kind) {
	if kind != KindNormal {
		return
	}
	p.mu.Lock()
	p.sockets[s] = struct{}{}
	p.mu.Unlock()
}

// Unregister removes a socket once it has been reaped (expunged).
func (p *Poller) Unregister(s *Socket) {
	p.mu.Lock()
	delete(p.sockets, s)
	p.mu.Unlock()
}

// Listen starts accepting on ln, invoking onAccept for each new connection,
// until the Poller is shut down or ln is closed.
func (p *Poller) Listen(ln net.Listener, onAccept AcceptFunc) {
	p.mu.Lock()
	p.listeners[ln] = onAccept
	p.mu.Unlock()

	p.group.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-p.ctx.Done():
					return nil
				default:
				}
				log.Printf("netio: accept on %s: %v", ln.Addr(), err)
				return nil
			}
			onAccept(conn)
		}
	})
}

// RunThrottleResets periodically resets every registered socket's throttle
// window (spec.md §4.1: "reset per-socket throttle counters whose window
// has elapsed"), until the Poller shuts down.
func (p *Poller) RunThrottleResets(tick time.Duration) {
	p.group.Go(func() error {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return nil
			case <-ticker.C:
				p.mu.Lock()
				for s := range p.sockets {
					s.ResetThrottleWindow()
				}
				p.mu.Unlock()
			}
		}
	})
}

// Shutdown stops accepting new connections, asks every tracked socket to
// drain, and force-closes whatever hasn't drained by deadline (spec.md
// §4.1 "shut_down(deadline)").
func (p *Poller) Shutdown(deadline time.Duration) {
	p.cancel()
	p.mu.Lock()
	for ln := range p.listeners {
		ln.Close()
	}
	sockets := make([]*Socket, 0, len(p.sockets))
	for s := range p.sockets {
		sockets = append(sockets, s)
	}
	p.mu.Unlock()

	for _, s := range sockets {
		s.Close()
	}
	cutoff := time.Now().Add(deadline)
	for _, s := range sockets {
		if !s.WaitDrained(cutoff) {
			s.CloseNow()
		}
	}
	p.group.Wait()
}
