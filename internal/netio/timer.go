package netio

import (
	"sync"
	"time"
)

// Owner identifies whoever a timer, resolver request, or DCC proxy belongs
// to, so it can be bulk-cancelled when that owner is torn down (spec.md
// §5 "Cancellation semantics").
type Owner interface {
	// Alive reports whether the owner still exists; a Timers callback
	// must check this before acting, since a timer fired concurrently
	// with teardown would otherwise revive a dead session.
	Alive() bool
}

type timerEntry struct {
	owner Owner
	name  string
	timer *time.Timer
	fn    func()
}

// Timers is the named, owner-scoped one-shot timer service described in
// spec.md §4, §5: a fresh timer with the same (owner, name) as one already
// pending is rejected (the "once-in-flight" guard used pervasively, e.g.
// for server_recon).
type Timers struct {
	mu      sync.Mutex
	entries map[Owner]map[string]*timerEntry
}

// NewTimers constructs an empty timer service.
func NewTimers() *Timers {
	return &Timers{entries: make(map[Owner]map[string]*timerEntry)}
}

// Add arms a one-shot timer named `name` owned by `owner`, firing `fn`
// after `d`. It returns false without arming anything if a timer with
// that (owner, name) already exists.
func (t *Timers) Add(owner Owner, name string, d time.Duration, fn func()) bool {
	t.mu.Lock()
	byName, ok := t.entries[owner]
	if !ok {
		byName = make(map[string]*timerEntry)
		t.entries[owner] = byName
	}
	if _, exists := byName[name]; exists {
		t.mu.Unlock()
		return false
	}
	entry := &timerEntry{owner: owner, name: name, fn: fn}
	byName[name] = entry
	t.mu.Unlock()

	entry.timer = time.AfterFunc(d, func() {
		t.fire(owner, name)
	})
	return true
}

func (t *Timers) fire(owner Owner, name string) {
	t.mu.Lock()
	byName, ok := t.entries[owner]
	if !ok {
		t.mu.Unlock()
		return
	}
	entry, ok := byName[name]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(byName, name)
	if len(byName) == 0 {
		delete(t.entries, owner)
	}
	t.mu.Unlock()

	if !owner.Alive() {
		return
	}
	entry.fn()
}

// Exists reports whether a timer (owner, name) is currently pending.
func (t *Timers) Exists(owner Owner, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	byName, ok := t.entries[owner]
	if !ok {
		return false
	}
	_, ok = byName[name]
	return ok
}

// Del cancels a single named timer; a no-op if it isn't pending.
func (t *Timers) Del(owner Owner, name string) {
	t.mu.Lock()
	byName, ok := t.entries[owner]
	if !ok {
		t.mu.Unlock()
		return
	}
	entry, ok := byName[name]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(byName, name)
	if len(byName) == 0 {
		delete(t.entries, owner)
	}
	t.mu.Unlock()
	entry.timer.Stop()
}

// DelAll cancels every timer bound to owner; called exactly once during
// session teardown (spec.md §5).
func (t *Timers) DelAll(owner Owner) {
	t.mu.Lock()
	byName, ok := t.entries[owner]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.entries, owner)
	t.mu.Unlock()
	for _, entry := range byName {
		entry.timer.Stop()
	}
}
