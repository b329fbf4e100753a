// Package resolver is the asynchronous DNS adapter spec.md §2 scopes out
// ("DNS resolution... treated as an asynchronous resolve_host/resolve_addr
// request/response"). It wraps net.Resolver in a goroutine-per-request
// shape so callers never block, and ties every request to an owner tag
// that can cancel it in bulk (spec.md §5).
package resolver

import (
	"context"
	"net"
	"sync"
	"time"
)

// Owner is anything a pending request can be cancelled on behalf of.
type Owner interface {
	Alive() bool
}

// HostResult is delivered once reverse/forward resolution completes.
type HostResult struct {
	Names []string
	Addrs []net.IP
	Err   error
}

// Resolver issues cancellable, owner-scoped DNS lookups.
type Resolver struct {
	timeout time.Duration
	net     *net.Resolver

	mu      sync.Mutex
	pending map[Owner]map[*context.CancelFunc]struct{}
}

// New constructs a Resolver with the given per-request timeout.
func New(timeout time.Duration) *Resolver {
	return &Resolver{timeout: timeout, net: net.DefaultResolver, pending: make(map[Owner]map[*context.CancelFunc]struct{})}
}

func (r *Resolver) track(owner Owner, cancel *context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.pending[owner]
	if !ok {
		set = make(map[*context.CancelFunc]struct{})
		r.pending[owner] = set
	}
	set[cancel] = struct{}{}
}

func (r *Resolver) untrack(owner Owner, cancel *context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.pending[owner]; ok {
		delete(set, cancel)
		if len(set) == 0 {
			delete(r.pending, owner)
		}
	}
}

// CancelAll cancels every outstanding request owned by owner (spec.md §5:
// "resolver.cancel_all(owner)"). Reply callbacks still in flight must
// independently check owner.Alive() before acting, since cancellation
// races with delivery.
func (r *Resolver) CancelAll(owner Owner) {
	r.mu.Lock()
	set, ok := r.pending[owner]
	delete(r.pending, owner)
	r.mu.Unlock()
	if !ok {
		return
	}
	for cancel := range set {
		(*cancel)()
	}
}

// ResolveAddr performs a reverse lookup of addr, delivering the result to
// cb on a new goroutine. cb is only invoked if owner.Alive() still holds
// at delivery time.
func (r *Resolver) ResolveAddr(owner Owner, addr string, cb func(HostResult)) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	r.track(owner, &cancel)
	go func() {
		defer cancel()
		defer r.untrack(owner, &cancel)
		names, err := r.net.LookupAddr(ctx, addr)
		if !owner.Alive() {
			return
		}
		cb(HostResult{Names: names, Err: err})
	}()
}

// ResolveHost performs a forward lookup of host, delivering the result to
// cb on a new goroutine, subject to the same owner-liveness check.
func (r *Resolver) ResolveHost(owner Owner, host string, cb func(HostResult)) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	r.track(owner, &cancel)
	go func() {
		defer cancel()
		defer r.untrack(owner, &cancel)
		addrs, err := r.net.LookupIPAddr(ctx, host)
		if !owner.Alive() {
			return
		}
		ips := make([]net.IP, len(addrs))
		for i, a := range addrs {
			ips[i] = a.IP
		}
		cb(HostResult{Addrs: ips, Err: err})
	}()
}
