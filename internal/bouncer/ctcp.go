package bouncer

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/presbrey/dircproxy/internal/dcc"
	"github.com/presbrey/dircproxy/internal/ircproto"
)

// CannedCTCPReplies are the offline responses spec.md §4.3 allows when a
// client is detached and ctcp_replies is on: "PING echo, TIME, VERSION,
// USERINFO, FINGER, CLIENTINFO".
var CannedCTCPReplies = map[string]func(params []string) string{
	"VERSION":    func([]string) string { return "dircproxy bouncer" },
	"USERINFO":   func([]string) string { return "away from keyboard" },
	"FINGER":     func([]string) string { return "detached from dircproxy" },
	"CLIENTINFO": func([]string) string { return "ACTION DCC VERSION CLIENTINFO USERINFO FINGER PING TIME ECHO" },
	"TIME":       func([]string) string { return time.Now().Format(time.RFC1123) },
	"PING": func(params []string) string {
		return strings.Join(params, " ")
	},
	"ECHO": func(params []string) string {
		return strings.Join(params, " ")
	},
}

// CannedReply builds the CTCP NOTICE reply text for a recognized
// offline-repliable command, or "" if command isn't one of them.
func CannedReply(command string, params []string) string {
	fn, ok := CannedCTCPReplies[strings.ToUpper(command)]
	if !ok {
		return ""
	}
	return ircproto.FormatCTCP(command, strings.Fields(fn(params))...)
}

// replyToCannedCTCP answers a detached client's incoming CTCP query on its
// behalf (original_source/trunk/src/irc_server.c's PRIVMSG handler: PING,
// ECHO, TIME, CLIENTINFO, VERSION, USERINFO and FINGER get an immediate
// NOTICE back to the sender when ctcp_replies is on and no client is
// currently attached to answer for real). NOTICE never gets auto-replies,
// only PRIVMSG, matching the convention the original enforces by only
// wiring this into its PRIVMSG branch.
func replyToCannedCTCP(session *Session, msg ircproto.Message) {
	if msg.Command != "PRIVMSG" || len(msg.Params) < 2 {
		return
	}
	session.mu.RLock()
	class := session.Class
	sock := session.ServerSocket
	session.mu.RUnlock()
	if class == nil || !class.CTCPReplies || session.IsAttached() || sock == nil {
		return
	}

	_, ctcps := ircproto.SplitCTCP(msg.Params[1])
	nick := ircproto.Nick(msg.Source)
	for _, c := range ctcps {
		reply := CannedReply(c.Command, c.Params)
		if reply == "" {
			continue
		}
		sock.Write(ircproto.Format("", "NOTICE", nick, reply))
	}
}

// RewriteOptions configures one direction of the CTCP/DCC rewriting
// pipeline (spec.md §4.3).
type RewriteOptions struct {
	// LocalAddr is our externally-visible address for this socket
	// (getsockname), used to rewrite outgoing DCC offers.
	LocalAddr net.IP
	Ports     dcc.PortRange
	Timeout   time.Duration

	SourceNick string // the offering party, for capture naming/resume keys

	CaptureDir      string
	CaptureAlways   bool
	CaptureWithNick bool
	CaptureMax      int64 // dcc_capture_maxsize; 0 means unlimited
	HaveClient      bool  // false when detached: forces capture if configured

	SendFast bool

	Resumes *dcc.ResumeRegistry

	OnProxyOpened func(*dcc.Proxy, dcc.Kind)
	OnRejectText  func(text string) // queued back to the offering party
	OnResumeOffer func(filename string, port int, offset int64) // send DCC RESUME to the sender
}

// RewriteResult is the outcome of rewriting one PRIVMSG/NOTICE payload.
type RewriteResult struct {
	Text    string // plain text plus every rewritten CTCP, byte-identical elsewhere
	Proxies []*dcc.Proxy
}

// RewriteDCC scans text for DCC CHAT/SEND offers and opens a proxy for
// each, replacing the offer's address/port with our own listen endpoint
// (spec.md §4.3 "CTCP/DCC rewriting"). Non-DCC CTCPs and plain text are
// passed through unchanged.
func RewriteDCC(text string, opts RewriteOptions) (RewriteResult, error) {
	plain, ctcps := ircproto.SplitCTCP(text)
	if len(ctcps) == 0 {
		return RewriteResult{Text: text}, nil
	}

	result := text
	var proxies []*dcc.Proxy
	for i, c := range ctcps {
		if c.Command != "DCC" {
			continue
		}
		offer, err := ircproto.ParseDCCOffer(c)
		if err != nil {
			continue
		}

		kind, capturePath := classifyOffer(offer, opts)
		cfg := dcc.Config{
			Kind:          kind,
			Timeout:       opts.Timeout,
			Ports:         opts.Ports,
			RemoteAddr:    net.JoinHostPort(offer.Addr.String(), fmt.Sprint(offer.Port)),
			CapturePath:   capturePath,
			CaptureMax:    opts.CaptureMax,
			RejectMessage: fmt.Sprintf("unable to proxy DCC %s", offer.Kind),
			OnReject:      opts.OnRejectText,
		}

		if capturePath != "" {
			if existing := existingCaptureOffset(capturePath); existing > 0 {
				if opts.Resumes != nil {
					opts.Resumes.Offer(dcc.ResumeRequest{
						SourceNick:    opts.SourceNick,
						Port:          offer.Port,
						Filename:      offer.Filename,
						RemoteAddr:    cfg.RemoteAddr,
						CapturePath:   capturePath,
						RejectMessage: fmt.Sprintf("unable to proxy DCC %s", offer.Kind),
						Offset:        existing,
					}, 60*time.Second, func(dcc.ResumeRequest) {
						dcc.RenameWithSuffix(capturePath)
					})
					if opts.OnResumeOffer != nil {
						opts.OnResumeOffer(offer.Filename, offer.Port, existing)
					}
				}
				continue
			}
		}

		proxy, err := dcc.Open(cfg)
		if err != nil {
			if opts.OnRejectText != nil {
				opts.OnRejectText(err.Error())
			}
			continue
		}
		proxies = append(proxies, proxy)
		if opts.OnProxyOpened != nil {
			opts.OnProxyOpened(proxy, kind)
		}

		newOffer := offer
		newOffer.Addr = opts.LocalAddr
		newOffer.Port = proxy.LocalPort()
		result = ircproto.Reinject(result, i, newOffer.Format())
	}
	_ = plain
	return RewriteResult{Text: result, Proxies: proxies}, nil
}

func classifyOffer(offer ircproto.DCCOffer, opts RewriteOptions) (dcc.Kind, string) {
	if offer.Kind == "CHAT" {
		return dcc.KindChat, ""
	}
	if opts.CaptureDir != "" && (!opts.HaveClient || opts.CaptureAlways) {
		base, err := dcc.SanitizeFilename(offer.Filename)
		if err != nil {
			base = "dcc-transfer"
		}
		return dcc.KindSendCapture, dcc.CapturePath(opts.CaptureDir, opts.SourceNick, base, opts.CaptureWithNick)
	}
	if opts.SendFast {
		return dcc.KindSendFast, ""
	}
	return dcc.KindSendSimple, ""
}

// acceptDCCResume looks for an inbound "DCC ACCEPT" answering one of our
// outstanding resume offers and, if found, reopens the capture proxy at
// the stashed offset (original_source/trunk/src/irc_server.c's ACCEPT
// branch: match on "nick:port", cancel the timeout timer, dial the
// original sender again and resume the capture file where it left off).
func acceptDCCResume(session *Session, msg ircproto.Message) {
	if (msg.Command != "PRIVMSG" && msg.Command != "NOTICE") || len(msg.Params) < 2 {
		return
	}
	if session.Resumes == nil {
		return
	}
	_, ctcps := ircproto.SplitCTCP(msg.Params[1])
	nick := ircproto.Nick(msg.Source)
	for _, c := range ctcps {
		if c.Command != "DCC" {
			continue
		}
		resume, err := ircproto.ParseDCCResume(c)
		if err != nil || resume.Kind != "ACCEPT" {
			continue
		}
		req, ok := session.Resumes.Accept(nick, resume.Port)
		if !ok {
			continue
		}

		session.mu.RLock()
		class := session.Class
		sock := session.ServerSocket
		session.mu.RUnlock()
		var captureMax int64
		if class != nil {
			captureMax = class.DCCCaptureMaxSize
		}

		_, err = dcc.Open(dcc.Config{
			Kind:          dcc.KindSendCapture,
			RemoteAddr:    req.RemoteAddr,
			CapturePath:   req.CapturePath,
			CaptureMax:    captureMax,
			ResumeOffset:  req.Offset,
			RejectMessage: req.RejectMessage,
		})
		if err != nil && sock != nil {
			sock.Write(ircproto.Format("", "NOTICE", nick, ircproto.FormatCTCP("DCC", "REJECT", "SEND", req.Filename)))
		}
	}
}

func existingCaptureOffset(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
