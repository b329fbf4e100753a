// Package bouncer implements the per-client proxy session: the dual
// client-side/server-side state machine, channel and log ownership,
// reconnection policy, CTCP/DCC rewriting, and the /DIRCPROXY admin
// surface (spec.md §3, §4.3).
package bouncer

// ClientStatus is the client-side half of a Session's status bitmask
// (spec.md §3).
type ClientStatus uint16

const (
	ClientGotPass ClientStatus = 1 << iota
	ClientGotNick
	ClientGotUser
	ClientGotNickConfirmed // GOTNICK: server has acked our nickname at least once
	ClientAttached
	ClientDead
)

func (s ClientStatus) Has(f ClientStatus) bool { return s&f != 0 }

// ServerStatus is the server-side connection stage machine (spec.md §4.3
// "Server connection stage machine"): states advance monotonically within
// one connection attempt.
type ServerStatus uint16

const (
	ServerCreated ServerStatus = 1 << iota
	ServerConnected
	ServerIntroduced
	ServerGotWelcome
	ServerActive
	ServerStoned
)

func (s ServerStatus) Has(f ServerStatus) bool { return s&f != 0 }

// String renders the highest stage reached, for status reporting
// (/DIRCPROXY STATUS, logs).
func (s ServerStatus) String() string {
	switch {
	case s.Has(ServerActive):
		return "active"
	case s.Has(ServerGotWelcome):
		return "got-welcome"
	case s.Has(ServerIntroduced):
		return "introduced"
	case s.Has(ServerConnected):
		return "connected"
	case s.Has(ServerCreated):
		return "created"
	default:
		return "disconnected"
	}
}
