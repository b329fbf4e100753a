package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
# top-level settings
listen_port 57000
pid_file ~/.dircproxy.pid
client_timeout 600

connection {
	password "s3cret"
	from *.example.com
	from 10.0.0.*
	server irc.freenode.net:6667
	server irc.libera.chat:6697:hunter2
	join #bouncer key123
	join #general
	server_retry 30
	server_maxattempts 0
	server_maxinitattempts 4
	server_throttle 1024:10
	channel_leave_on_detach yes
	idle_maxtime 120
	nick_keep true
	away_message "I'm not here right now"
	dcc_proxy_ports 5000-5010
	dcc_capture_directory ~/dcc
	chan_log_recall -1
}
`

func TestParseSampleConfig(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 57000, cfg.ListenPort)
	assert.Equal(t, 600*time.Second, cfg.ClientTimeout)
	require.Len(t, cfg.Classes, 1)

	c := cfg.Classes[0]
	assert.Equal(t, "s3cret", c.Password)
	assert.Equal(t, []string{"*.example.com", "10.0.0.*"}, c.HostPatterns)
	require.Len(t, c.Servers, 2)
	assert.Equal(t, ServerSpec{Host: "irc.freenode.net", Port: 6667}, c.Servers[0])
	assert.Equal(t, ServerSpec{Host: "irc.libera.chat", Port: 6697, Password: "hunter2"}, c.Servers[1])
	require.Len(t, c.Joins, 2)
	assert.Equal(t, ChannelJoin{Name: "#bouncer", Key: "key123"}, c.Joins[0])
	assert.Equal(t, ChannelJoin{Name: "#general"}, c.Joins[1])
	assert.Equal(t, 30*time.Second, c.ServerRetry)
	assert.Equal(t, 4, c.ServerMaxInitAttempts)
	assert.Equal(t, 1024, c.ThrottleBytes)
	assert.Equal(t, 10*time.Second, c.ThrottlePeriod)
	assert.True(t, c.ChannelLeaveOnDetach)
	assert.Equal(t, 120*time.Second, c.IdleMaxtime)
	assert.True(t, c.NickKeep)
	assert.Equal(t, "I'm not here right now", c.AwayMessage)
	assert.Equal(t, 5000, c.DCCProxyPortLow)
	assert.Equal(t, 5010, c.DCCProxyPortHigh)
	assert.Equal(t, -1, c.ChanLog.Recall)
}

func TestNextServerSpecWraps(t *testing.T) {
	c := &ConnectionClass{Servers: []ServerSpec{{Host: "a"}, {Host: "b"}, {Host: "c"}}}
	var got []string
	for i := 0; i < 5; i++ {
		got = append(got, c.NextServerSpec().Host)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, got)
}

func TestValidateClassesRejectsMissingServers(t *testing.T) {
	classes := []*ConnectionClass{{Name: "x", Password: "pw", ServerRetry: time.Second, PingTimeout: time.Second, ChannelRejoin: time.Second}}
	err := ValidateClasses(classes)
	assert.Error(t, err)
}

func TestBcryptVerifier(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	v := BcryptVerifier{}
	assert.True(t, v.Verify("hunter2", hash))
	assert.False(t, v.Verify("wrong", hash))
}

func TestTokenizeHandlesQuotesAndEscapes(t *testing.T) {
	fields, err := tokenize(`attach_message "hi \"there\""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"attach_message", `hi "there"`}, fields)
}

func TestUnterminatedBlockIsAnError(t *testing.T) {
	_, err := Parse(strings.NewReader("connection {\npassword x\n"))
	assert.Error(t, err)
}
