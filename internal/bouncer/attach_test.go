package bouncer

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presbrey/dircproxy/internal/config"
	"github.com/presbrey/dircproxy/internal/ircproto"
	"github.com/presbrey/dircproxy/internal/logstore"
	"github.com/presbrey/dircproxy/internal/netio"
)

// lineReader returns a function that reads one CRLF-terminated line at a
// time off conn, reusing a single buffered reader so lines written back to
// back in one socket flush aren't dropped the way a fresh bufio.Reader per
// call would drop them.
func lineReader(t *testing.T, conn net.Conn) func() string {
	t.Helper()
	r := bufio.NewReader(conn)
	return func() string {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return trimCRLF(line)
	}
}

func newAttachedSession(t *testing.T, class *config.ConnectionClass) (*Session, net.Conn) {
	t.Helper()
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	s.Class = class
	s.ServerStatus = ServerActive

	serverConn, serverBack := pipeSockConn(t)
	t.Cleanup(func() { serverConn.Close() })
	s.ServerSocket = netio.NewSocket(serverBack, func(string) {}, func(netio.ErrorKind, error) {})
	t.Cleanup(func() { s.ServerSocket.Close() })
	return s, serverConn
}

func TestRunAttachSequenceIdentifiesRejoinsAndAnnounces(t *testing.T) {
	class := &config.ConnectionClass{
		NickservPassword: "hunter2",
		AttachMessage:    "/me is back",
	}
	s, serverConn := newAttachedSession(t, class)
	s.Channels.Join("#joined", "#joined", "")
	s.Channels.MarkUnjoined("#joined")

	unjoined, _ := s.Channels.Get("#joined")
	unjoined.mu.Lock()
	unjoined.Key = "secret"
	unjoined.mu.Unlock()

	next := lineReader(t, serverConn)
	runAttachSequence(s, class)

	assert.Equal(t, "PRIVMSG NICKSERV :IDENTIFY hunter2", next())
	assert.Equal(t, "JOIN #joined secret", next())
	assert.Equal(t, "PRIVMSG #joined :\x01ACTION is back\x01", next())
}

func TestRunAttachSequenceSkipsInactiveChannelAnnounce(t *testing.T) {
	class := &config.ConnectionClass{AttachMessage: "hello"}
	s, serverConn := newAttachedSession(t, class)
	s.Channels.Join("#x", "#x", "")
	ch, _ := s.Channels.Get("#x")
	ch.mu.Lock()
	ch.Inactive = true
	ch.mu.Unlock()

	runAttachSequence(s, class)

	// No announce should be sent for the inactive channel; confirm nothing
	// arrives within a short window.
	serverConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := serverConn.Read(buf)
	assert.Error(t, err, "expected a read timeout, no announce should have been sent")
}

func TestRunAttachSequenceNoopWithoutActiveServer(t *testing.T) {
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	class := &config.ConnectionClass{NickservPassword: "hunter2"}
	s.Class = class
	// ServerSocket is nil and ServerStatus is not ServerActive.
	runAttachSequence(s, class)
}

func TestRunDetachSequenceDropsModesAndPartsChannels(t *testing.T) {
	class := &config.ConnectionClass{
		DropModes:             "iw",
		DetachMessage:         "/me is away",
		ChannelLeaveOnDetach:  true,
		ChannelRejoinOnAttach: true,
		AwayMessage:           "gone fishing",
	}
	s, serverConn := newAttachedSession(t, class)
	s.Channels.Join("#x", "#x", "")

	next := lineReader(t, serverConn)
	runDetachSequence(s, class)

	assert.Equal(t, "MODE alice -iw", next())
	assert.Equal(t, "PRIVMSG #x :\x01ACTION is away\x01", next())
	assert.Equal(t, "PART #x", next())
	assert.Equal(t, "AWAY :gone fishing", next())

	ch, ok := s.Channels.Get("#x")
	require.True(t, ok, "ChannelRejoinOnAttach must keep the record, marked unjoined")
	ch.mu.Lock()
	unjoined := ch.Unjoined
	ch.mu.Unlock()
	assert.True(t, unjoined)
}

func TestRunDetachSequenceForgetsChannelWithoutRejoinOnAttach(t *testing.T) {
	class := &config.ConnectionClass{
		ChannelLeaveOnDetach:  true,
		ChannelRejoinOnAttach: false,
	}
	s, serverConn := newAttachedSession(t, class)
	s.Channels.Join("#x", "#x", "")

	runDetachSequence(s, class)
	readLine(t, serverConn) // PART #x

	_, ok := s.Channels.Get("#x")
	assert.False(t, ok, "without ChannelRejoinOnAttach the channel record should be forgotten")
}

func TestRunDetachSequenceSkipsAwayWhenAlreadyAway(t *testing.T) {
	class := &config.ConnectionClass{AwayMessage: "gone fishing"}
	s, serverConn := newAttachedSession(t, class)
	s.AwayMessage = "already set by the user"

	runDetachSequence(s, class)

	serverConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := serverConn.Read(buf)
	assert.Error(t, err, "AWAY must not be resent when the user already set one")
}

func TestRecordMessageGatesOnPolicyAndAttachment(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("1.2.3.4")
	s.Logs = NewSessionLogs(dir)
	class := &config.ConnectionClass{
		ChanLog: config.LogPolicy{Enabled: true, Always: false},
	}

	// Not attached and not Always: nothing logged.
	recordMessage(s, class, "PRIVMSG", "#x", "bob!b@h", "hello")
	lf, err := s.Logs.ChannelLog("#x", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, lf.NLines())

	// Attach a client socket so IsAttached() is true.
	clientConn, clientBack := pipeSockConn(t)
	defer clientConn.Close()
	defer clientBack.Close()
	s.ClientSocket = netio.NewSocket(clientBack, func(string) {}, func(netio.ErrorKind, error) {})
	defer s.ClientSocket.Close()

	recordMessage(s, class, "PRIVMSG", "#x", "bob!b@h", "hello")
	assert.Equal(t, 1, lf.NLines())
}

func TestRecordMessageAlwaysLogsWithoutAttachment(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("1.2.3.4")
	s.Logs = NewSessionLogs(dir)
	class := &config.ConnectionClass{
		PrivateLog: config.LogPolicy{Enabled: true, Always: true},
	}

	recordMessage(s, class, "PRIVMSG", "bob", "bob!b@h", "hi there")

	lf, err := s.Logs.PrivateLog(0)
	require.NoError(t, err)
	assert.Equal(t, 1, lf.NLines())
}

func TestRecordServerEventRespectsEnabledFlag(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("1.2.3.4")
	s.Logs = NewSessionLogs(dir)
	class := &config.ConnectionClass{ServerLog: config.LogPolicy{Enabled: false}}

	recordServerEvent(s, class, "DETACH", "You disconnected")

	lf, err := s.Logs.ServerLog(0)
	require.NoError(t, err)
	assert.Equal(t, 0, lf.NLines())
}

func TestLogInboundMessageSplitsCTCP(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("1.2.3.4")
	s.Logs = NewSessionLogs(dir)
	s.Class = &config.ConnectionClass{
		ChanLog: config.LogPolicy{Enabled: true, Always: true},
	}

	raw := ":bob!b@h PRIVMSG #x :hello there\x01ACTION waves\x01"
	msg, ok := ircproto.Parse(raw)
	require.True(t, ok)

	logInboundMessage(s, msg)

	lf, err := s.Logs.ChannelLog("#x", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, lf.NLines(), "plain text and the CTCP payload should log as separate entries")
}

func TestLogEventAllowedEmptyListAllowsEverything(t *testing.T) {
	assert.True(t, logEventAllowed(nil, "PRIVMSG"))
}

func TestLogEventAllowedBareKindAllowsOnlyThatKind(t *testing.T) {
	assert.True(t, logEventAllowed([]string{"privmsg"}, "PRIVMSG"))
	assert.False(t, logEventAllowed([]string{"privmsg"}, "NOTICE"))
}

func TestLogEventAllowedAllThenMinusExcludes(t *testing.T) {
	assert.False(t, logEventAllowed([]string{"all", "-notice"}, "NOTICE"))
	assert.True(t, logEventAllowed([]string{"all", "-notice"}, "PRIVMSG"))
}

func TestLogEventAllowedNoneThenPlusIncludes(t *testing.T) {
	assert.True(t, logEventAllowed([]string{"none", "+kick"}, "KICK"))
	assert.False(t, logEventAllowed([]string{"none", "+kick"}, "NICK"))
}

func TestReplayRecallSendsStoredEntriesToFreshClient(t *testing.T) {
	dir := t.TempDir()
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	s.Logs = NewSessionLogs(dir)
	class := &config.ConnectionClass{
		PrivateLog: config.LogPolicy{Enabled: true, Always: true, Recall: -1},
	}

	lf, err := s.Logs.PrivateLog(0)
	require.NoError(t, err)
	require.NoError(t, lf.Append(logstore.Entry{
		Time:        time.Now(),
		Kind:        "PRIVMSG",
		Destination: "alice",
		Source:      "bob!b@h",
		Text:        "hey there",
	}))

	clientConn, clientBack := pipeSockConn(t)
	defer clientConn.Close()
	defer clientBack.Close()
	clientSock := netio.NewSocket(clientBack, func(string) {}, func(netio.ErrorKind, error) {})
	defer clientSock.Close()

	replayRecall(s, class, clientSock)

	line := readLine(t, clientConn)
	assert.Contains(t, line, "bob!b@h PRIVMSG alice")
	assert.Contains(t, line, "hey there")
}
