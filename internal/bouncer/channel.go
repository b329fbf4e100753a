package bouncer

import "sync"

// Channel tracks one channel the session's server connection has joined
// (spec.md §3 Session.channels): its key (if any), whether the client-side
// considers it currently joined, and the synthetic-MODE squelch marker set
// on every JOIN.
type Channel struct {
	mu sync.Mutex

	Name string
	Key  string

	// Unjoined is true once the bouncer has PARTed the channel on detach
	// (channel_leave_on_detach with channel_rejoin_on_attach) and kept its
	// record; it gates the rejoin on the next attach.
	Unjoined bool

	// Inactive is true when we believe the server no longer considers us
	// joined (KICKed, or a 471/473/474 rejoin failure) while no client was
	// attached to see it happen; a rejoin timer is driving it back to
	// joined (spec.md §3 invariant 5, §4.3 "Channel tracking").
	Inactive bool

	// SquelchModes marks that the next 324 (RPL_CHANNELMODEIS) or 477
	// numeric for this channel is the response to our own synthetic MODE
	// query issued right after JOIN, and must not reach the client
	// (spec.md §3 dynamic flags, §4.6 squelching rules).
	SquelchModes bool
}

// Channels is the session's owned collection, keyed by case-folded name.
type Channels struct {
	mu   sync.RWMutex
	byFn map[string]*Channel
}

// NewChannels returns an empty collection.
func NewChannels() *Channels {
	return &Channels{byFn: make(map[string]*Channel)}
}

// Get returns the tracked channel for an already case-folded name.
func (c *Channels) Get(foldedName string) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byFn[foldedName]
	return ch, ok
}

// Join records (or re-marks) a channel as joined, arming the MODE squelch.
func (c *Channels) Join(foldedName, name, key string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.byFn[foldedName]
	if !ok {
		ch = &Channel{Name: name, Key: key}
		c.byFn[foldedName] = ch
	}
	ch.mu.Lock()
	ch.Unjoined = false
	ch.Inactive = false
	ch.SquelchModes = true
	ch.mu.Unlock()
	return ch
}

// MarkUnjoined flags a channel as left without forgetting it, so a later
// rejoin (attach, or explicit /DIRCPROXY) can restore it with its key.
func (c *Channels) MarkUnjoined(foldedName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.byFn[foldedName]; ok {
		ch.mu.Lock()
		ch.Unjoined = true
		ch.mu.Unlock()
	}
}

// Remove forgets a channel entirely (KICK, or server-confirmed PART not
// originating from a detach).
func (c *Channels) Remove(foldedName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byFn, foldedName)
}

// MarkInactive flags a channel as believed-lost (KICK or a 471/473/474
// rejoin failure with no client attached to see it), leaving it in place
// for a rejoin timer to restore (spec.md §4.3). Reports false if the
// channel was never tracked, so the caller knows there is nothing to
// rejoin.
func (c *Channels) MarkInactive(foldedName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.byFn[foldedName]
	if !ok {
		return false
	}
	ch.mu.Lock()
	ch.Inactive = true
	ch.mu.Unlock()
	return true
}

// ConsumeModesSquelch reports and clears the squelch marker; the caller
// uses the return value to decide whether to drop the next 324/477 for
// this channel.
func (c *Channels) ConsumeModesSquelch(foldedName string) bool {
	c.mu.RLock()
	ch, ok := c.byFn[foldedName]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.SquelchModes {
		return false
	}
	ch.SquelchModes = false
	return true
}

// All returns every tracked channel, for rejoin-on-attach and STATUS.
func (c *Channels) All() []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Channel, 0, len(c.byFn))
	for _, ch := range c.byFn {
		out = append(out, ch)
	}
	return out
}

// Joined returns the tracked channels that are not currently unjoined.
func (c *Channels) Joined() []*Channel {
	var out []*Channel
	for _, ch := range c.All() {
		ch.mu.Lock()
		unjoined := ch.Unjoined
		ch.mu.Unlock()
		if !unjoined {
			out = append(out, ch)
		}
	}
	return out
}
