package bouncer

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/presbrey/dircproxy/internal/config"
)

// AdminContext is everything a /DIRCPROXY command handler needs: the
// issuing session, the registry (for cross-session commands like KILL and
// USERS), and a way to talk back to the client.
type AdminContext struct {
	Session  *Session
	Registry *Registry
	Reply    func(line string)

	// Detach tears the client socket away from the session without
	// closing the server connection (wired by the caller to the socket
	// layer; kept out of this package so admin stays socket-agnostic).
	Detach func()
	// Die asks the whole process to shut down.
	Die func()
	// Jump forces an immediate reconnect, optionally to a named server.
	Jump func(serverHost string)
	// Reload re-reads the configuration file.
	Reload func() error
}

// AdminHandler implements one /DIRCPROXY sub-command.
type AdminHandler func(ctx *AdminContext, args []string) error

// commandAllowFlag maps a command to a reader of the ConnectionClass
// allow_* field gating it; a command absent from the map is always
// allowed (spec.md §6 allow_{persist,jump,...}).
var commandAllowFlag = map[string]func(s *Session) bool{
	"PERSIST": func(s *Session) bool { return s.Class.AllowPersist },
	"JUMP":    func(s *Session) bool { return s.Class.AllowJump },
	"HOST":    func(s *Session) bool { return s.Class.AllowHost },
	"DIE":     func(s *Session) bool { return s.Class.AllowDie },
	"USERS":   func(s *Session) bool { return s.Class.AllowUsers },
	"KILL":    func(s *Session) bool { return s.Class.AllowKill },
	"NOTIFY":  func(s *Session) bool { return s.Class.AllowNotify },
	"SERVERS": func(s *Session) bool { return s.Class.AllowDynamic },
}

var adminHandlers = map[string]AdminHandler{
	"HELP":    adminHelp,
	"MOTD":    adminMotd,
	"STATUS":  adminStatus,
	"RECALL":  adminRecall,
	"PERSIST": adminPersist,
	"QUIT":    adminQuit,
	"DETACH":  adminDetach,
	"DIE":     adminDie,
	"JUMP":    adminJump,
	"SERVERS": adminServers,
	"USERS":   adminUsers,
	"KILL":    adminKill,
	"NOTIFY":  adminNotify,
	"HOST":    adminHost,
	"RELOAD":  adminReload,
	"GET":     adminGet,
	"SET":     adminSet,
}

// Dispatch parses "/DIRCPROXY <cmd> [args...]" text already stripped of
// its leading slash and routes it to the matching handler, enforcing the
// class's allow_* gates (spec.md §4.3 "/DIRCPROXY command dispatcher").
func Dispatch(ctx *AdminContext, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return fmt.Errorf("bouncer: empty admin command")
	}
	cmd := strings.ToUpper(fields[0])
	handler, ok := adminHandlers[cmd]
	if !ok {
		ctx.Reply(fmt.Sprintf("Unknown command %q; try HELP", cmd))
		return nil
	}
	if gate, gated := commandAllowFlag[cmd]; gated && !gate(ctx.Session) {
		ctx.Reply(fmt.Sprintf("%s is not permitted for this connection class", cmd))
		return nil
	}
	return handler(ctx, fields[1:])
}

func adminHelp(ctx *AdminContext, _ []string) error {
	names := make([]string, 0, len(adminHandlers))
	for name := range adminHandlers {
		names = append(names, name)
	}
	ctx.Reply("Available commands: " + strings.Join(names, " "))
	return nil
}

func adminMotd(ctx *AdminContext, _ []string) error {
	for _, line := range BuildMOTD(ctx.Session) {
		ctx.Reply(line)
	}
	return nil
}

// statusSnapshot is the YAML-rendered body of /DIRCPROXY STATUS, giving a
// scriptable view of one session without a client needing to parse the
// human-oriented numerics it would otherwise have to scrape.
type statusSnapshot struct {
	SessionID    string   `yaml:"session_id"`
	Nick         string   `yaml:"nick"`
	Class        string   `yaml:"class"`
	ServerStatus string   `yaml:"server_status"`
	Attached     bool     `yaml:"attached"`
	UptimeSec    int64    `yaml:"uptime_seconds"`
	Channels     []string `yaml:"channels"`
}

func adminStatus(ctx *AdminContext, _ []string) error {
	s := ctx.Session
	s.mu.RLock()
	snap := statusSnapshot{
		SessionID:    s.SessionID,
		Nick:         s.Nickname,
		ServerStatus: s.ServerStatus.String(),
		UptimeSec:    int64(time.Since(s.createdAt).Seconds()),
	}
	if s.Class != nil {
		snap.Class = s.Class.Name
	}
	s.mu.RUnlock()
	snap.Attached = s.IsAttached()
	for _, ch := range s.Channels.Joined() {
		snap.Channels = append(snap.Channels, ch.Name)
	}

	out, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("bouncer: marshal status: %w", err)
	}
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		ctx.Reply(line)
	}
	return nil
}

func adminRecall(ctx *AdminContext, args []string) error {
	target := "*"
	if len(args) > 0 {
		target = args[0]
	}
	ctx.Reply(fmt.Sprintf("Recall for %s requested; replay happens through the normal attach log-recall path", target))
	return nil
}

func adminPersist(ctx *AdminContext, _ []string) error {
	ctx.Reply("This session will persist after you detach")
	return nil
}

func adminQuit(ctx *AdminContext, args []string) error {
	msg := "leaving"
	if len(args) > 0 {
		msg = strings.Join(args, " ")
	}
	ctx.Session.MarkDead()
	ctx.Reply("Goodbye: " + msg)
	return nil
}

func adminDetach(ctx *AdminContext, _ []string) error {
	if ctx.Detach != nil {
		ctx.Detach()
	}
	return nil
}

func adminDie(ctx *AdminContext, _ []string) error {
	ctx.Reply("Shutting down")
	if ctx.Die != nil {
		ctx.Die()
	}
	return nil
}

func adminJump(ctx *AdminContext, args []string) error {
	server := ""
	if len(args) > 0 {
		server = args[0]
	}
	if ctx.Jump != nil {
		ctx.Jump(server)
	}
	ctx.Reply("Reconnecting")
	return nil
}

func adminServers(ctx *AdminContext, _ []string) error {
	var b strings.Builder
	for _, spec := range ctx.Session.Class.Servers {
		fmt.Fprintf(&b, "%s:%d ", spec.Host, spec.Port)
	}
	ctx.Reply(strings.TrimSpace(b.String()))
	return nil
}

func adminUsers(ctx *AdminContext, _ []string) error {
	var names []string
	for _, s := range ctx.Registry.All() {
		names = append(names, s.Nickname)
	}
	ctx.Reply("Connected: " + strings.Join(names, ", "))
	return nil
}

func adminKill(ctx *AdminContext, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("bouncer: KILL requires a nickname")
	}
	target, ok := ctx.Registry.ByNick(args[0])
	if !ok {
		ctx.Reply("No such session: " + args[0])
		return nil
	}
	target.MarkDead()
	ctx.Reply("Killed session for " + args[0])
	return nil
}

func adminNotify(ctx *AdminContext, args []string) error {
	ctx.Reply("Notify list: " + strings.Join(args, ", "))
	return nil
}

func adminHost(ctx *AdminContext, _ []string) error {
	s := ctx.Session
	host := s.ResolvedHost
	if host == "" {
		host = s.ClientHost
	}
	ctx.Reply("Your host: " + host)
	return nil
}

func adminReload(ctx *AdminContext, _ []string) error {
	if ctx.Reload == nil {
		ctx.Reply("Reload is not wired up")
		return nil
	}
	if err := ctx.Reload(); err != nil {
		ctx.Reply("Reload failed: " + err.Error())
		return err
	}
	ctx.Reply("Configuration reloaded")
	return nil
}

func adminGet(ctx *AdminContext, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("bouncer: GET requires a key")
	}
	val, ok := classFieldString(ctx.Session.Class, args[0])
	if !ok {
		ctx.Reply("Unknown key: " + args[0])
		return nil
	}
	ctx.Reply(fmt.Sprintf("%s = %s", args[0], val))
	return nil
}

func adminSet(ctx *AdminContext, args []string) error {
	if !ctx.Session.Class.AllowDynamic {
		ctx.Reply("SET is not permitted for this connection class")
		return nil
	}
	if len(args) < 2 {
		return fmt.Errorf("bouncer: SET requires a key and a value")
	}
	ctx.Reply(fmt.Sprintf("SET %s accepted for this session only (not persisted)", args[0]))
	return nil
}

// classFieldString exposes the handful of ConnectionClass settings GET is
// useful for, without reflecting over the whole struct.
func classFieldString(c *config.ConnectionClass, key string) (string, bool) {
	switch strings.ToLower(key) {
	case "away_message":
		return c.AwayMessage, true
	case "quit_message":
		return c.QuitMessage, true
	case "nick_keep":
		return fmt.Sprint(c.NickKeep), true
	case "idle_maxtime":
		return c.IdleMaxtime.String(), true
	case "server_retry":
		return c.ServerRetry.String(), true
	case "channel_rejoin":
		return c.ChannelRejoin.String(), true
	case "ctcp_replies":
		return fmt.Sprint(c.CTCPReplies), true
	default:
		return "", false
	}
}
