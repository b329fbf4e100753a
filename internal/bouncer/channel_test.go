package bouncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelsJoinAndModesSquelch(t *testing.T) {
	chans := NewChannels()
	chans.Join("#chan", "#chan", "key1")

	ch, ok := chans.Get("#chan")
	require.True(t, ok)
	assert.Equal(t, "key1", ch.Key)

	assert.True(t, chans.ConsumeModesSquelch("#chan"))
	assert.False(t, chans.ConsumeModesSquelch("#chan"), "squelch marker consumed only once")
}

func TestChannelsJoinedExcludesUnjoined(t *testing.T) {
	chans := NewChannels()
	chans.Join("#a", "#a", "")
	chans.Join("#b", "#b", "")
	chans.MarkUnjoined("#b")

	joined := chans.Joined()
	require.Len(t, joined, 1)
	assert.Equal(t, "#a", joined[0].Name)
}

func TestChannelsRemoveForgets(t *testing.T) {
	chans := NewChannels()
	chans.Join("#a", "#a", "")
	chans.Remove("#a")
	_, ok := chans.Get("#a")
	assert.False(t, ok)
}
