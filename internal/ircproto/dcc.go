package ircproto

import (
	"fmt"
	"net"
	"strconv"
)

// DCCOffer is a parsed "DCC CHAT|SEND" CTCP payload (spec.md §6, DCC wire
// format). Addr is the resolved IPv4 address; the wire encodes it as a
// 32-bit host-order integer, per the original DCC convention.
type DCCOffer struct {
	Kind     string // "CHAT" or "SEND"
	Filename string // SEND only
	Addr     net.IP
	Port     int
	Size     int64 // SEND only, -1 if absent
}

// ParseDCCOffer interprets a CTCP whose Command == "DCC" and whose first
// param is CHAT or SEND.
func ParseDCCOffer(c CTCP) (DCCOffer, error) {
	if len(c.Params) < 1 {
		return DCCOffer{}, fmt.Errorf("ircproto: empty DCC payload")
	}
	kind := c.Params[0]
	switch kind {
	case "CHAT":
		if len(c.Params) < 4 {
			return DCCOffer{}, fmt.Errorf("ircproto: malformed DCC CHAT")
		}
		addr, err := decodeAddr(c.Params[2])
		if err != nil {
			return DCCOffer{}, err
		}
		port, err := strconv.Atoi(c.Params[3])
		if err != nil {
			return DCCOffer{}, fmt.Errorf("ircproto: bad DCC CHAT port: %w", err)
		}
		return DCCOffer{Kind: "CHAT", Addr: addr, Port: port, Size: -1}, nil
	case "SEND":
		if len(c.Params) < 4 {
			return DCCOffer{}, fmt.Errorf("ircproto: malformed DCC SEND")
		}
		addr, err := decodeAddr(c.Params[2])
		if err != nil {
			return DCCOffer{}, err
		}
		port, err := strconv.Atoi(c.Params[3])
		if err != nil {
			return DCCOffer{}, fmt.Errorf("ircproto: bad DCC SEND port: %w", err)
		}
		size := int64(-1)
		if len(c.Params) >= 5 {
			if n, err := strconv.ParseInt(c.Params[4], 10, 64); err == nil {
				size = n
			}
		}
		return DCCOffer{Kind: "SEND", Filename: c.Params[1], Addr: addr, Port: port, Size: size}, nil
	default:
		return DCCOffer{}, fmt.Errorf("ircproto: unsupported DCC sub-command %q", kind)
	}
}

// Format renders a rewritten DCC CHAT/SEND CTCP payload.
func (o DCCOffer) Format() string {
	addrInt := encodeAddr(o.Addr)
	switch o.Kind {
	case "CHAT":
		return FormatCTCP("DCC", "CHAT", "chat", addrInt, strconv.Itoa(o.Port))
	case "SEND":
		args := []string{"SEND", o.Filename, addrInt, strconv.Itoa(o.Port)}
		if o.Size >= 0 {
			args = append(args, strconv.FormatInt(o.Size, 10))
		}
		return FormatCTCP("DCC", args...)
	default:
		return ""
	}
}

func decodeAddr(s string) (net.IP, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("ircproto: bad DCC address %q: %w", s, err)
	}
	ip := make(net.IP, 4)
	ip[0] = byte(n >> 24)
	ip[1] = byte(n >> 16)
	ip[2] = byte(n >> 8)
	ip[3] = byte(n)
	return ip, nil
}

func encodeAddr(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return "0"
	}
	n := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
	return strconv.FormatUint(uint64(n), 10)
}

// DCCResume is a parsed "DCC RESUME|ACCEPT <file> <port> <position>" CTCP
// (spec.md §6): unlike a CHAT/SEND offer it carries no address, since it
// refers back to a connection the two peers already negotiated.
type DCCResume struct {
	Kind     string // "RESUME" or "ACCEPT"
	Filename string
	Port     int
	Position int64
}

// ParseDCCResume interprets a CTCP whose Command == "DCC" and whose first
// param is RESUME or ACCEPT.
func ParseDCCResume(c CTCP) (DCCResume, error) {
	if len(c.Params) < 1 {
		return DCCResume{}, fmt.Errorf("ircproto: empty DCC payload")
	}
	kind := c.Params[0]
	if kind != "RESUME" && kind != "ACCEPT" {
		return DCCResume{}, fmt.Errorf("ircproto: unsupported DCC sub-command %q", kind)
	}
	if len(c.Params) < 4 {
		return DCCResume{}, fmt.Errorf("ircproto: malformed DCC %s", kind)
	}
	port, err := strconv.Atoi(c.Params[2])
	if err != nil {
		return DCCResume{}, fmt.Errorf("ircproto: bad DCC %s port: %w", kind, err)
	}
	pos, err := strconv.ParseInt(c.Params[3], 10, 64)
	if err != nil {
		return DCCResume{}, fmt.Errorf("ircproto: bad DCC %s position: %w", kind, err)
	}
	return DCCResume{Kind: kind, Filename: c.Params[1], Port: port, Position: pos}, nil
}

// FormatResume renders "DCC RESUME <file> <port> <offset>".
func FormatResume(filename string, port int, offset int64) string {
	return FormatCTCP("DCC", "RESUME", filename, strconv.Itoa(port), strconv.FormatInt(offset, 10))
}

// FormatAccept renders "DCC ACCEPT <file> <port> <offset>".
func FormatAccept(filename string, port int, offset int64) string {
	return FormatCTCP("DCC", "ACCEPT", filename, strconv.Itoa(port), strconv.FormatInt(offset, 10))
}

// FormatReject renders "DCC REJECT <kind> <file>".
func FormatReject(kind, filename string) string {
	return FormatCTCP("DCC", "REJECT", kind, filename)
}
