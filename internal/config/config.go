package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level parsed configuration (spec.md §6).
type Config struct {
	ListenPort     int
	PidFile        string
	ClientTimeout  time.Duration
	ConnectTimeout time.Duration
	DNSTimeout     time.Duration
	Classes        []*ConnectionClass
}

func applyTopKey(cfg *Config, key string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: missing value", key)
	}
	val := args[0]
	switch key {
	case "listen_port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("listen_port: %w", err)
		}
		cfg.ListenPort = n
	case "pid_file":
		cfg.PidFile = expandHome(val)
	case "client_timeout":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return fmt.Errorf("client_timeout: %w", err)
		}
		cfg.ClientTimeout = d
	case "connect_timeout":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	case "dns_timeout":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return fmt.Errorf("dns_timeout: %w", err)
		}
		cfg.DNSTimeout = d
	default:
		return fmt.Errorf("unknown top-level key %q", key)
	}
	return nil
}

func applyClassKey(c *ConnectionClass, key string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: missing value", key)
	}
	val := args[0]
	joined := strings.Join(args, " ")

	switch key {
	case "password":
		c.Password = val
	case "from":
		c.HostPatterns = append(c.HostPatterns, val)
	case "server":
		spec, err := parseServerSpec(val)
		if err != nil {
			return err
		}
		c.Servers = append(c.Servers, spec)
	case "join":
		jc := ChannelJoin{Name: val}
		if len(args) > 1 {
			jc.Key = args[1]
		}
		c.Joins = append(c.Joins, jc)
	case "server_retry":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return err
		}
		c.ServerRetry = d
	case "server_maxattempts":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.ServerMaxAttempts = n
	case "server_maxinitattempts":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.ServerMaxInitAttempts = n
	case "server_pingtimeout", "server_keepalive":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return err
		}
		c.PingTimeout = d
	case "server_throttle":
		bytes, period, err := parseThrottle(val)
		if err != nil {
			return err
		}
		c.ThrottleBytes, c.ThrottlePeriod = bytes, period
	case "server_autoconnect":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.ServerAutoconnect = b
	case "channel_rejoin":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return err
		}
		c.ChannelRejoin = d
	case "channel_leave_on_detach":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.ChannelLeaveOnDetach = b
	case "channel_rejoin_on_attach":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.ChannelRejoinOnAttach = b
	case "idle_maxtime":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return err
		}
		c.IdleMaxtime = d
	case "disconnect_existing_user":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DisconnectExistingUser = b
	case "disconnect_on_detach":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DisconnectOnDetach = b
	case "initial_modes":
		c.InitialModes = val
	case "drop_modes":
		c.DropModes = val
	case "refuse_modes":
		c.RefuseModes = val
	case "local_address":
		c.LocalAddress = val
	case "away_message":
		c.AwayMessage = joined
	case "quit_message":
		c.QuitMessage = joined
	case "attach_message":
		c.AttachMessage = joined
	case "detach_message":
		c.DetachMessage = joined
	case "detach_nickname":
		c.DetachNickname = val
	case "nick_keep":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.NickKeep = b
	case "nickserv_password":
		c.NickservPassword = val
	case "ctcp_replies":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.CTCPReplies = b
	case "log_timestamp":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.LogTimestamp = b
	case "log_relativetime":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.LogRelativeTime = b
	case "log_timeoffset":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return err
		}
		c.LogTimeOffset = d
	case "log_events":
		c.LogEvents = strings.Split(val, ",")
	case "log_dir":
		c.LogDir = expandHome(val)
	case "log_program":
		c.LogProgram = expandHome(val)
	case "chan_log_enabled":
		return applyLogPolicyBool(&c.ChanLog, "enabled", val)
	case "chan_log_always":
		return applyLogPolicyBool(&c.ChanLog, "always", val)
	case "chan_log_maxsize":
		return applyLogPolicyInt(&c.ChanLog, "maxsize", val)
	case "chan_log_recall":
		return applyLogPolicyInt(&c.ChanLog, "recall", val)
	case "private_log_enabled":
		return applyLogPolicyBool(&c.PrivateLog, "enabled", val)
	case "private_log_always":
		return applyLogPolicyBool(&c.PrivateLog, "always", val)
	case "private_log_maxsize":
		return applyLogPolicyInt(&c.PrivateLog, "maxsize", val)
	case "private_log_recall":
		return applyLogPolicyInt(&c.PrivateLog, "recall", val)
	case "server_log_enabled":
		return applyLogPolicyBool(&c.ServerLog, "enabled", val)
	case "server_log_always":
		return applyLogPolicyBool(&c.ServerLog, "always", val)
	case "server_log_maxsize":
		return applyLogPolicyInt(&c.ServerLog, "maxsize", val)
	case "server_log_recall":
		return applyLogPolicyInt(&c.ServerLog, "recall", val)
	case "dcc_proxy_incoming":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DCCProxyIncoming = b
	case "dcc_proxy_outgoing":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DCCProxyOutgoing = b
	case "dcc_proxy_ports":
		parts := strings.SplitN(val, "-", 2)
		lo, err := strconv.Atoi(parts[0])
		if err != nil {
			return err
		}
		hi := lo
		if len(parts) == 2 {
			hi, err = strconv.Atoi(parts[1])
			if err != nil {
				return err
			}
		}
		c.DCCProxyPortLow, c.DCCProxyPortHigh = lo, hi
	case "dcc_proxy_timeout":
		d, err := parseDurationSeconds(val)
		if err != nil {
			return err
		}
		c.DCCProxyTimeout = d
	case "dcc_proxy_sendreject":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DCCProxySendReject = b
	case "dcc_send_fast":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DCCSendFast = b
	case "dcc_capture_directory":
		c.DCCCaptureDirectory = expandHome(val)
	case "dcc_capture_always":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DCCCaptureAlways = b
	case "dcc_capture_withnick":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.DCCCaptureWithNick = b
	case "dcc_capture_maxsize":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		c.DCCCaptureMaxSize = n
	case "dcc_tunnel_incoming":
		c.DCCTunnelIncoming = val
	case "dcc_tunnel_outgoing":
		c.DCCTunnelOutgoing = val
	case "switch_user":
		c.SwitchUser = val
	case "motd_logo":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.MotdLogo = b
	case "motd_file":
		c.MotdFile = expandHome(val)
	case "motd_stats":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		c.MotdStats = b
	case "allow_persist":
		return setAllow(&c.AllowPersist, val)
	case "allow_jump":
		return setAllow(&c.AllowJump, val)
	case "allow_jump_new":
		return setAllow(&c.AllowJumpNew, val)
	case "allow_host":
		return setAllow(&c.AllowHost, val)
	case "allow_die":
		return setAllow(&c.AllowDie, val)
	case "allow_users":
		return setAllow(&c.AllowUsers, val)
	case "allow_kill":
		return setAllow(&c.AllowKill, val)
	case "allow_notify":
		return setAllow(&c.AllowNotify, val)
	case "allow_dynamic":
		return setAllow(&c.AllowDynamic, val)
	default:
		return fmt.Errorf("unknown connection key %q", key)
	}
	return nil
}

func setAllow(dst *bool, val string) error {
	b, err := parseBool(val)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func applyLogPolicyBool(p *LogPolicy, field, val string) error {
	b, err := parseBool(val)
	if err != nil {
		return err
	}
	switch field {
	case "enabled":
		p.Enabled = b
	case "always":
		p.Always = b
	}
	return nil
}

func applyLogPolicyInt(p *LogPolicy, field, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	switch field {
	case "maxsize":
		p.MaxSize = n
	case "recall":
		p.Recall = n
	}
	return nil
}
