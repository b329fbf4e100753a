package config

import "time"

// ServerSpec is one entry of a ConnectionClass's ordered server list:
// "host[:port][:password]" (spec.md §3, §6).
type ServerSpec struct {
	Host     string
	Port     int
	Password string
}

// ChannelJoin is one entry of a ConnectionClass's initial-join list:
// "name [key]" (spec.md §3).
type ChannelJoin struct {
	Name string
	Key  string
}

// LogPolicy bundles the three *_log_{enabled,always,maxsize,recall} keys
// shared by the chan/private/server log namespaces (spec.md §6).
type LogPolicy struct {
	Enabled bool
	Always  bool
	MaxSize int
	Recall  int // -1 means "all if not always-on, else none" (spec.md §4.5)
}

// ConnectionClass is the authorization + policy record of spec.md §3: a
// client authenticates to exactly one class.
type ConnectionClass struct {
	Name string // block label, informational only

	Password     string
	HostPatterns []string
	Servers      []ServerSpec
	NextServer   int `validate:"gte=0"`
	Joins        []ChannelJoin

	ServerRetry           time.Duration `validate:"gt=0"`
	ServerMaxAttempts     int           // 0 = unlimited
	ServerMaxInitAttempts int           // 0 = unlimited
	PingTimeout           time.Duration `validate:"gt=0"`
	ThrottleBytes         int
	ThrottlePeriod        time.Duration
	ServerAutoconnect     bool

	ChannelRejoin         time.Duration `validate:"gt=0"`
	ChannelLeaveOnDetach  bool
	ChannelRejoinOnAttach bool

	IdleMaxtime time.Duration

	DisconnectExistingUser bool
	DisconnectOnDetach     bool

	InitialModes string
	DropModes    string
	RefuseModes  string

	LocalAddress string

	AwayMessage    string
	QuitMessage    string
	AttachMessage  string
	DetachMessage  string
	DetachNickname string

	NickKeep         bool
	NickservPassword string
	CTCPReplies      bool

	LogTimestamp     bool
	LogRelativeTime  bool
	LogTimeOffset    time.Duration
	LogEvents        []string
	LogDir           string
	LogProgram       string
	ChanLog          LogPolicy
	PrivateLog       LogPolicy
	ServerLog        LogPolicy

	DCCProxyIncoming   bool
	DCCProxyOutgoing   bool
	DCCProxyPortLow    int `validate:"omitempty,gte=1,lte=65535"`
	DCCProxyPortHigh   int `validate:"omitempty,gtefield=DCCProxyPortLow,lte=65535"`
	DCCProxyTimeout    time.Duration
	DCCProxySendReject bool
	DCCSendFast        bool

	DCCCaptureDirectory string
	DCCCaptureAlways    bool
	DCCCaptureWithNick  bool
	DCCCaptureMaxSize   int64

	DCCTunnelIncoming string
	DCCTunnelOutgoing string

	SwitchUser string

	MotdLogo  bool
	MotdFile  string
	MotdStats bool

	AllowPersist bool
	AllowJump    bool
	AllowJumpNew bool
	AllowHost    bool
	AllowDie     bool
	AllowUsers   bool
	AllowKill    bool
	AllowNotify  bool
	AllowDynamic bool
}

// NextServerSpec returns the server to try next and advances the cursor,
// wrapping to the head of the list (spec.md §4.3 reconnect policy: "advance
// the server cursor (wrap to head and increment attempts)").
func (c *ConnectionClass) NextServerSpec() ServerSpec {
	if len(c.Servers) == 0 {
		return ServerSpec{}
	}
	spec := c.Servers[c.NextServer%len(c.Servers)]
	c.NextServer = (c.NextServer + 1) % len(c.Servers)
	return spec
}

// RecallCount resolves a LogPolicy's recall setting into a concrete line
// count for the given "always-on" state (spec.md §4.5).
func (p LogPolicy) RecallCount(alwaysOn bool) int {
	if p.Recall != -1 {
		return p.Recall
	}
	if alwaysOn {
		return 0
	}
	return -1 // sentinel meaning "all"
}
