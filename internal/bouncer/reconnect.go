package bouncer

import (
	"sync"
	"time"

	"github.com/presbrey/dircproxy/internal/config"
)

// ReconnectState tracks the per-session reconnection policy (spec.md §4.3
// "Server connection stage machine", §6 server_retry/server_maxattempts/
// server_maxinitattempts): server cycling through the class's ordered
// list, with separate attempt caps for the very first connection versus
// subsequent reconnects.
type ReconnectState struct {
	mu sync.Mutex

	Attempts     int
	InitAttempts int
	EverActive   bool
}

// ShouldRetry reports whether another attempt is permitted under the
// class's maxattempts/maxinitattempts policy (0 means unlimited).
func (r *ReconnectState) ShouldRetry(class *config.ConnectionClass) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.EverActive {
		if class.ServerMaxInitAttempts > 0 && r.InitAttempts >= class.ServerMaxInitAttempts {
			return false
		}
		return true
	}
	if class.ServerMaxAttempts > 0 && r.Attempts >= class.ServerMaxAttempts {
		return false
	}
	return true
}

// RecordAttempt counts one failed connection attempt, against Attempts once
// the session has ever been ACTIVE and against InitAttempts before that.
func (r *ReconnectState) RecordAttempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EverActive {
		r.Attempts++
	} else {
		r.InitAttempts++
	}
}

// RecordActive resets the attempt counters once a connection reaches
// ACTIVE, and remembers that the session has connected at least once
// (switching future failures from the init cap to the steady-state cap).
func (r *ReconnectState) RecordActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EverActive = true
	r.Attempts = 0
	r.InitAttempts = 0
}

// NextDelay is the server_retry interval to wait before the next attempt.
func (r *ReconnectState) NextDelay(class *config.ConnectionClass) time.Duration {
	if class.ServerRetry <= 0 {
		return 30 * time.Second
	}
	return class.ServerRetry
}
