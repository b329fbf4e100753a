package bouncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/presbrey/dircproxy/internal/config"
)

func TestReconnectStateInitAttemptsCap(t *testing.T) {
	class := &config.ConnectionClass{ServerMaxInitAttempts: 2, ServerRetry: time.Second}
	var r ReconnectState

	assert.True(t, r.ShouldRetry(class))
	r.RecordAttempt()
	assert.True(t, r.ShouldRetry(class))
	r.RecordAttempt()
	assert.False(t, r.ShouldRetry(class))
}

func TestReconnectStateActiveResetsCounters(t *testing.T) {
	class := &config.ConnectionClass{ServerMaxAttempts: 1, ServerMaxInitAttempts: 1, ServerRetry: time.Second}
	var r ReconnectState

	r.RecordAttempt()
	assert.False(t, r.ShouldRetry(class))

	r.RecordActive()
	assert.True(t, r.ShouldRetry(class), "counters reset once the connection reaches ACTIVE")

	r.RecordAttempt()
	assert.False(t, r.ShouldRetry(class), "steady-state cap applies after having been active")
}

func TestReconnectStateUnlimitedWhenZero(t *testing.T) {
	class := &config.ConnectionClass{ServerRetry: time.Second}
	var r ReconnectState
	for i := 0; i < 50; i++ {
		r.RecordAttempt()
	}
	assert.True(t, r.ShouldRetry(class))
}
