// Package dcc implements the DCC proxy sub-engine (spec.md §4.4): it
// intercepts CHAT/SEND offers, dials the real peer, opens a local listen
// for the bounced side (or a capture file), and relays or captures the
// byte stream with the original DCC acknowledgement protocol.
package dcc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// Kind selects the relay strategy (spec.md §3 DccProxy.type).
type Kind int

const (
	KindChat Kind = iota
	KindSendSimple
	KindSendFast
	KindSendCapture
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindSendSimple:
		return "send-simple"
	case KindSendFast:
		return "send-fast"
	case KindSendCapture:
		return "send-capture"
	default:
		return "unknown"
	}
}

// BlockSize is DCC_BLOCK_SIZE from the wire protocol: the chunk size used
// by the simple (ack-before-next-block) SEND strategy.
const BlockSize = 4096

// Status holds one endpoint's connection state (spec.md §3: "created,
// connected, listening, gone, active").
type Status struct {
	mu        sync.Mutex
	Created   bool
	Connected bool
	Listening bool
	Gone      bool
	Active    bool
}

func (s *Status) set(f func(*Status)) {
	s.mu.Lock()
	f(s)
	s.mu.Unlock()
}

func (s *Status) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Created: s.Created, Connected: s.Connected, Listening: s.Listening, Gone: s.Gone, Active: s.Active}
}

// PortRange restricts listen/dial source ports to a configured span
// (spec.md §6 dcc_proxy_ports); a zero range means "let the OS choose".
type PortRange struct {
	Low, High int
}

func (r PortRange) empty() bool { return r.Low == 0 && r.High == 0 }

// Config describes one proxy to construct (spec.md §4.4's "constructed
// with {type, timeout, port-range, remote endpoint, optional capture
// path/max-size, rejection callback, rejection message, optional resume
// offset}").
type Config struct {
	Kind          Kind
	Timeout       time.Duration
	Ports         PortRange
	RemoteAddr    string // host:port of the real sender/sendee, as resolved from the CTCP
	CapturePath   string
	CaptureMax    int64
	ResumeOffset  int64
	RejectMessage string
	OnReject      func(reason string)
	OnNotice      func(text string) // CHAT mode peer notifications
}

// Proxy is one active DCC relay or capture (spec.md §3 DccProxy).
type Proxy struct {
	cfg Config

	Sender Status
	Sendee Status

	senderConn net.Conn
	sendeeConn net.Conn
	listener   net.Listener
	localPort  int
	capture    *os.File

	BytesSent int64
	BytesAckd int64
	BytesRcvd int64

	mu      sync.Mutex
	started time.Time
	done    chan struct{}
	closed  bool
}

// Open dials the remote endpoint and, for non-capture kinds, opens the
// local listen that will be advertised in the rewritten CTCP.
func Open(cfg Config) (*Proxy, error) {
	p := &Proxy{cfg: cfg, started: time.Now(), done: make(chan struct{})}
	p.Sender.set(func(s *Status) { s.Created = true })

	conn, localAddr, err := dialFromRange(cfg.RemoteAddr, cfg.Ports)
	if err != nil {
		return nil, fmt.Errorf("dcc: dial %s: %w", cfg.RemoteAddr, err)
	}
	p.senderConn = conn
	p.Sender.set(func(s *Status) { s.Connected = true })
	_ = localAddr

	if cfg.Kind != KindSendCapture {
		ln, port, err := listenFromRange(cfg.Ports)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("dcc: listen: %w", err)
		}
		p.listener = ln
		p.localPort = port
		p.Sendee.set(func(s *Status) { s.Created = true; s.Listening = true })
	} else {
		f, err := openCaptureFile(cfg.CapturePath, cfg.ResumeOffset)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("dcc: capture file: %w", err)
		}
		p.capture = f
		p.BytesRcvd = cfg.ResumeOffset
	}

	go p.run()
	go p.watchTimeout()
	return p, nil
}

// LocalPort is the listen port to advertise to the local peer in place of
// the original remote port (spec.md §4.3 step 4).
func (p *Proxy) LocalPort() int { return p.localPort }

// Done is closed once the proxy has finished (completed, timed out, or
// been rejected).
func (p *Proxy) Done() <-chan struct{} { return p.done }

func (p *Proxy) finish() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if p.senderConn != nil {
		p.senderConn.Close()
	}
	if p.sendeeConn != nil {
		p.sendeeConn.Close()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	if p.capture != nil {
		p.capture.Close()
	}
	close(p.done)
}

func (p *Proxy) run() {
	if p.cfg.Kind != KindSendCapture {
		conn, err := p.acceptSendee()
		if err != nil {
			if p.cfg.OnReject != nil {
				p.cfg.OnReject(err.Error())
			}
			p.finish()
			return
		}
		p.sendeeConn = conn
		p.Sendee.set(func(s *Status) { s.Connected = true; s.Active = true })
	}
	p.Sender.set(func(s *Status) { s.Active = true })

	switch p.cfg.Kind {
	case KindChat:
		p.relayChat()
	case KindSendSimple:
		p.relaySendSimple()
	case KindSendFast:
		p.relaySendFast()
	case KindSendCapture:
		p.captureSend()
	}
	p.finish()
}

func (p *Proxy) acceptSendee() (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := p.listener.Accept()
		ch <- result{c, err}
	}()
	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for peer to connect")
	}
}

// relayChat bridges both sides byte-for-byte with no framing (spec.md §4.4).
func (p *Proxy) relayChat() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(p.sendeeConn, p.senderConn) }()
	go func() { defer wg.Done(); io.Copy(p.senderConn, p.sendeeConn) }()
	wg.Wait()
}

// relaySendSimple forwards DCC_BLOCK_SIZE chunks, waiting for the sendee's
// acknowledgement to exceed bytes sent before forwarding the next chunk,
// while continuously acking the sender (spec.md §4.4).
func (p *Proxy) relaySendSimple() {
	ackCh := make(chan int64, 1)
	go p.readAcks(p.sendeeConn, ackCh)

	buf := make([]byte, BlockSize)
	for {
		n, err := p.senderConn.Read(buf)
		if n > 0 {
			p.BytesRcvd += int64(n)
			ackSender(p.senderConn, p.BytesRcvd)

			if _, werr := p.sendeeConn.Write(buf[:n]); werr != nil {
				return
			}
			p.BytesSent += int64(n)
			p.waitForAck(ackCh, p.BytesSent)
		}
		if err != nil {
			return
		}
		if p.cfg.CaptureMax > 0 && p.BytesRcvd >= p.cfg.CaptureMax {
			return
		}
	}
}

func (p *Proxy) waitForAck(ackCh chan int64, target int64) {
	for p.BytesAckd < target {
		select {
		case n := <-ackCh:
			p.BytesAckd = n
		case <-time.After(30 * time.Second):
			return
		}
	}
}

// relaySendFast streams without waiting for acks, tracking them only for
// status reporting (spec.md §4.4).
func (p *Proxy) relaySendFast() {
	ackCh := make(chan int64, 16)
	go p.readAcks(p.sendeeConn, ackCh)
	go func() {
		for n := range ackCh {
			p.BytesAckd = n
		}
	}()

	buf := make([]byte, BlockSize)
	for {
		n, err := p.senderConn.Read(buf)
		if n > 0 {
			p.BytesRcvd += int64(n)
			ackSender(p.senderConn, p.BytesRcvd)
			if _, werr := p.sendeeConn.Write(buf[:n]); werr != nil {
				return
			}
			p.BytesSent += int64(n)
		}
		if err != nil {
			return
		}
	}
}

// captureSend reads from the real sender and writes straight to a capture
// file, still observing the sender-ack half of the protocol. Exceeding
// CaptureMax kills the transfer and unlinks the partial file rather than
// leaving a truncated capture behind (spec.md §4.4).
func (p *Proxy) captureSend() {
	buf := make([]byte, BlockSize)
	for {
		n, err := p.senderConn.Read(buf)
		if n > 0 {
			if _, werr := p.capture.Write(buf[:n]); werr != nil {
				return
			}
			p.BytesRcvd += int64(n)
			ackSender(p.senderConn, p.BytesRcvd)
		}
		if err != nil {
			return
		}
		if p.cfg.CaptureMax > 0 && p.BytesRcvd >= p.cfg.CaptureMax {
			p.capture.Close()
			os.Remove(p.cfg.CapturePath)
			p.capture = nil
			return
		}
	}
}

// readAcks parses the receiver's 4-byte big-endian running-total acks.
func (p *Proxy) readAcks(conn net.Conn, out chan<- int64) {
	defer close(out)
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		out <- int64(binary.BigEndian.Uint32(hdr[:]))
	}
}

func ackSender(conn net.Conn, total int64) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(total))
	conn.Write(hdr[:])
}

// watchTimeout implements the completion timer's three-way decision
// (spec.md §4.4): if neither side is active by the deadline the proxy
// dies; if the sender is active but the sendee never joined, the sender
// is notified; if the sender is gone but the sendee connected, the timer
// is ignored (the relay can still finish draining).
func (p *Proxy) watchTimeout() {
	timeout := p.cfg.Timeout
	if timeout <= 0 {
		return
	}
	select {
	case <-time.After(timeout):
	case <-p.done:
		return
	}

	sender := p.Sender.snapshot()
	sendee := p.Sendee.snapshot()

	switch {
	case !sender.Active && !sendee.Active:
		if p.cfg.Kind == KindChat && p.cfg.OnNotice != nil {
			p.cfg.OnNotice("DCC CHAT timed out waiting for a connection")
		}
		if p.cfg.OnReject != nil {
			p.cfg.OnReject("timed out")
		}
		p.finish()
	case sender.Active && !sendee.Active:
		if p.cfg.OnNotice != nil {
			p.cfg.OnNotice("DCC peer never connected")
		}
		p.finish()
	case sender.Gone && sendee.Connected:
		// ignored: let the relay keep draining what the sendee already has
	}
}

func dialFromRange(remote string, pr PortRange) (net.Conn, *net.TCPAddr, error) {
	if pr.empty() {
		conn, err := net.DialTimeout("tcp", remote, 30*time.Second)
		return conn, nil, err
	}
	var lastErr error
	for port := pr.Low; port <= pr.High; port++ {
		local := &net.TCPAddr{Port: port}
		d := net.Dialer{LocalAddr: local, Timeout: 30 * time.Second}
		conn, err := d.Dial("tcp", remote)
		if err == nil {
			return conn, local, nil
		}
		lastErr = err
	}
	return nil, nil, fmt.Errorf("no free port in range %d-%d: %w", pr.Low, pr.High, lastErr)
}

func listenFromRange(pr PortRange) (net.Listener, int, error) {
	if pr.empty() {
		ln, err := net.Listen("tcp", ":0")
		if err != nil {
			return nil, 0, err
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}
	var lastErr error
	for port := pr.Low; port <= pr.High; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port in range %d-%d: %w", pr.Low, pr.High, lastErr)
}

func openCaptureFile(path string, resumeOffset int64) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resumeOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, err
	}
	if resumeOffset > 0 {
		if _, err := f.Seek(resumeOffset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
