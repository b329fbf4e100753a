package logstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T, maxLines int) (*LogFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "chan.log")
	lf, err := Open(path, maxLines)
	require.NoError(t, err)
	t.Cleanup(func() { lf.Close() })
	return lf, path
}

func TestAppendAndNLines(t *testing.T) {
	lf, _ := mustOpen(t, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, lf.Append(Entry{Time: time.Now(), Kind: "PRIVMSG", Destination: "#chan", Source: "alice", Text: "hi"}))
	}
	assert.Equal(t, 3, lf.NLines())
}

func TestRotationKeepsContiguousSuffix(t *testing.T) {
	lf, _ := mustOpen(t, 3)
	base := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, lf.Append(Entry{
			Time:        base.Add(time.Duration(i) * time.Second),
			Kind:        "PRIVMSG",
			Destination: "#chan",
			Source:      "alice",
			Text:        "msg" + string(rune('0'+i)),
		}))
	}
	assert.LessOrEqual(t, lf.NLines(), 3)

	lines, err := lf.Recall(RecallOptions{MaxLines: -1, Now: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "msg7", lines[0].Entry.Text)
	assert.Equal(t, "msg8", lines[1].Entry.Text)
	assert.Equal(t, "msg9", lines[2].Entry.Text)
}

func TestAppendReopensAfterClose(t *testing.T) {
	lf, _ := mustOpen(t, 0)
	require.NoError(t, lf.Close())
	assert.False(t, lf.IsOpen())
	require.NoError(t, lf.Append(Entry{Time: time.Now(), Kind: "PRIVMSG", Destination: "#c", Source: "bob", Text: "hi"}))
	assert.True(t, lf.IsOpen())
	assert.Equal(t, 1, lf.NLines())
}

func TestRecallNickFilter(t *testing.T) {
	lf, _ := mustOpen(t, 0)
	base := time.Now()
	require.NoError(t, lf.Append(Entry{Time: base, Kind: "PRIVMSG", Destination: "#c", Source: "bob!b@host", Text: "hello there"}))
	require.NoError(t, lf.Append(Entry{Time: base, Kind: "PRIVMSG", Destination: "#c", Source: "carol!c@host", Text: "mentions bob in passing"}))

	lines, err := lf.Recall(RecallOptions{MaxLines: -1, NickFilter: "bob", Now: base})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello there", lines[0].Entry.Text)
}

func TestRecallTimestampCoarsening(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want string
	}{
		{time.Hour, "[" + now.Add(-time.Hour).Format("15:04") + "]"},
		{3 * 24 * time.Hour, "[" + now.Add(-3*24*time.Hour).Format("Mon 15:04") + "]"},
		{30 * 24 * time.Hour, "[" + now.Add(-30*24*time.Hour).Format("2 Jan") + "]"},
		{400 * 24 * time.Hour, "[" + now.Add(-400*24*time.Hour).Format("2 Jan 2006") + "]"},
	}
	for _, c := range cases {
		got := formatTimestamp(now, now.Add(-c.age))
		assert.Equal(t, c.want, got)
	}
}

func TestRecallMaxLinesZeroReturnsNothing(t *testing.T) {
	lf, _ := mustOpen(t, 0)
	require.NoError(t, lf.Append(Entry{Time: time.Now(), Kind: "PRIVMSG", Destination: "#c", Source: "a", Text: "x"}))
	lines, err := lf.Recall(RecallOptions{MaxLines: 0})
	require.NoError(t, err)
	assert.Empty(t, lines)
}
