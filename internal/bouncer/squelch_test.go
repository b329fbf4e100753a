package bouncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldSquelchSelfEcho(t *testing.T) {
	assert.True(t, ShouldSquelchSelfEcho("JOIN", true, true, false))
	assert.False(t, ShouldSquelchSelfEcho("JOIN", true, false, false), "client-originated self JOIN passes through")
	assert.False(t, ShouldSquelchSelfEcho("JOIN", false, true, false), "not about us at all")
	assert.False(t, ShouldSquelchSelfEcho("PRIVMSG", true, true, false), "PRIVMSG is not in the squelch set")
	assert.False(t, ShouldSquelchSelfEcho("NICK", true, true, true), "forced self-NICK is never squelched")
}
