package bouncer

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/dcc"
	"github.com/presbrey/dircproxy/internal/ircproto"
	"github.com/presbrey/dircproxy/internal/netio"
)

func TestCannedReplyKnownAndUnknown(t *testing.T) {
	reply := CannedReply("VERSION", nil)
	assert.Contains(t, reply, "VERSION")
	assert.Empty(t, CannedReply("BOGUS", nil))
}

func TestCannedReplyEcho(t *testing.T) {
	reply := CannedReply("ECHO", []string{"ping-1"})
	assert.Equal(t, ircproto.FormatCTCP("ECHO", "ping-1"), reply)
}

func TestReplyToCannedCTCPSendsNoticeWhenDetached(t *testing.T) {
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	s.Class = &config.ConnectionClass{CTCPReplies: true}

	serverConn, serverBack := pipeSockConn(t)
	defer serverConn.Close()
	s.ServerSocket = netio.NewSocket(serverBack, func(string) {}, func(netio.ErrorKind, error) {})
	defer s.ServerSocket.Close()

	raw := ":bob!b@h PRIVMSG alice :" + ircproto.FormatCTCP("VERSION")
	msg, ok := ircproto.Parse(raw)
	require.True(t, ok)

	replyToCannedCTCP(s, msg)

	line := readLine(t, serverConn)
	assert.Equal(t, "NOTICE bob :"+ircproto.FormatCTCP("VERSION", "dircproxy", "bouncer"), line)
}

func TestReplyToCannedCTCPSkipsWhenAttached(t *testing.T) {
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	s.Class = &config.ConnectionClass{CTCPReplies: true}

	serverConn, serverBack := pipeSockConn(t)
	defer serverConn.Close()
	s.ServerSocket = netio.NewSocket(serverBack, func(string) {}, func(netio.ErrorKind, error) {})
	defer s.ServerSocket.Close()

	clientConn, clientBack := pipeSockConn(t)
	defer clientConn.Close()
	defer clientBack.Close()
	s.ClientSocket = netio.NewSocket(clientBack, func(string) {}, func(netio.ErrorKind, error) {})
	defer s.ClientSocket.Close()

	raw := ":bob!b@h PRIVMSG alice :" + ircproto.FormatCTCP("VERSION")
	msg, ok := ircproto.Parse(raw)
	require.True(t, ok)

	replyToCannedCTCP(s, msg)

	serverConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := serverConn.Read(buf)
	assert.Error(t, err, "an attached session must answer CTCPs itself, not via the canned table")
}

func TestReplyToCannedCTCPIgnoresNotice(t *testing.T) {
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	s.Class = &config.ConnectionClass{CTCPReplies: true}

	serverConn, serverBack := pipeSockConn(t)
	defer serverConn.Close()
	s.ServerSocket = netio.NewSocket(serverBack, func(string) {}, func(netio.ErrorKind, error) {})
	defer s.ServerSocket.Close()

	raw := ":bob!b@h NOTICE alice :" + ircproto.FormatCTCP("VERSION")
	msg, ok := ircproto.Parse(raw)
	require.True(t, ok)

	replyToCannedCTCP(s, msg)

	serverConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := serverConn.Read(buf)
	assert.Error(t, err, "NOTICE must never trigger a canned CTCP reply")
}

func TestRewriteDCCPassesNonDCCThrough(t *testing.T) {
	text := "hello " + ircproto.FormatCTCP("ACTION", "waves") + " world"
	res, err := RewriteDCC(text, RewriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, text, res.Text)
	assert.Empty(t, res.Proxies)
}

func TestRewriteDCCChatOpensProxyWithRewrittenAddrPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	offer := ircproto.DCCOffer{Kind: "CHAT", Addr: net.ParseIP("127.0.0.1"), Port: port, Size: -1}
	text := "chat? " + offer.Format()

	res, err := RewriteDCC(text, RewriteOptions{
		LocalAddr: net.ParseIP("10.0.0.9"),
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, res.Proxies, 1)

	newPort := res.Proxies[0].LocalPort()
	assert.NotEqual(t, port, newPort)
	assert.Contains(t, res.Text, "chat? ")
	assert.Contains(t, res.Text, strconv.Itoa(newPort))
}

func TestRewriteDCCResumeOfferInvokesCallback(t *testing.T) {
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(capturePath, []byte("partial-data"), 0o600))

	offer := ircproto.DCCOffer{Kind: "SEND", Filename: "file.bin", Addr: net.ParseIP("10.0.0.9"), Port: 5000, Size: 1000}
	text := offer.Format()

	var gotFilename string
	var gotPort int
	var gotOffset int64
	resumes := dcc.NewResumeRegistry()

	res, err := RewriteDCC(text, RewriteOptions{
		SourceNick:    "alice",
		CaptureDir:    dir,
		CaptureAlways: true,
		Resumes:       resumes,
		OnResumeOffer: func(filename string, port int, offset int64) {
			gotFilename, gotPort, gotOffset = filename, port, offset
		},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Proxies, "a resumed transfer must not open a fresh proxy")
	assert.Equal(t, "file.bin", gotFilename)
	assert.Equal(t, 5000, gotPort)
	assert.Equal(t, int64(len("partial-data")), gotOffset)
	assert.True(t, resumes.Pending("alice", 5000))
}

func TestAcceptDCCResumeReopensCaptureAtStashedOffset(t *testing.T) {
	remotePeer, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer remotePeer.Close()
	go func() {
		c, err := remotePeer.Accept()
		if err == nil {
			c.Close()
		}
	}()

	dir := t.TempDir()
	capturePath := filepath.Join(dir, "file.bin")

	s := NewSession("1.2.3.4")
	s.Class = &config.ConnectionClass{}
	s.Resumes = dcc.NewResumeRegistry()
	s.Resumes.Offer(dcc.ResumeRequest{
		SourceNick:  "alice",
		Port:        5000,
		Filename:    "file.bin",
		RemoteAddr:  remotePeer.Addr().String(),
		CapturePath: capturePath,
		Offset:      100,
	}, time.Minute, func(dcc.ResumeRequest) {})

	raw := ":alice!a@h PRIVMSG bouncer :" + ircproto.FormatAccept("file.bin", 5000, 100)
	msg, ok := ircproto.Parse(raw)
	require.True(t, ok)

	acceptDCCResume(s, msg)

	assert.False(t, s.Resumes.Pending("alice", 5000), "a matched ACCEPT must clear the pending resume")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(capturePath); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the capture file to be reopened after a matching DCC ACCEPT")
}
