package bouncer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presbrey/dircproxy/internal/config"
)

func newTestCtx() (*AdminContext, *[]string) {
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"
	s.Class = &config.ConnectionClass{}
	var replies []string
	ctx := &AdminContext{
		Session:  s,
		Registry: NewRegistry(),
		Reply:    func(line string) { replies = append(replies, line) },
	}
	return ctx, &replies
}

func TestDispatchUnknownCommand(t *testing.T) {
	ctx, replies := newTestCtx()
	require.NoError(t, Dispatch(ctx, "BOGUS"))
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0], "Unknown command")
}

func TestDispatchGatedCommandRejected(t *testing.T) {
	ctx, replies := newTestCtx()
	ctx.Session.Class.AllowDie = false
	require.NoError(t, Dispatch(ctx, "DIE"))
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0], "not permitted")
}

func TestDispatchGatedCommandAllowed(t *testing.T) {
	ctx, replies := newTestCtx()
	ctx.Session.Class.AllowDie = true
	died := false
	ctx.Die = func() { died = true }
	require.NoError(t, Dispatch(ctx, "DIE"))
	assert.True(t, died)
	assert.NotEmpty(t, *replies)
}

func TestDispatchStatus(t *testing.T) {
	ctx, replies := newTestCtx()
	require.NoError(t, Dispatch(ctx, "STATUS"))
	require.NotEmpty(t, *replies)
	joined := strings.Join(*replies, "\n")
	assert.Contains(t, joined, "nick: alice")
	assert.Contains(t, joined, "session_id:")
}

func TestDispatchKillUnknownNick(t *testing.T) {
	ctx, replies := newTestCtx()
	ctx.Session.Class.AllowKill = true
	require.NoError(t, Dispatch(ctx, "KILL bob"))
	require.Len(t, *replies, 1)
	assert.Contains(t, (*replies)[0], "No such session")
}
