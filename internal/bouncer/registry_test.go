package bouncer

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRegistryBindLookupUnbind(t *testing.T) {
	r := NewRegistry()
	s := NewSession("1.2.3.4")
	s.Nickname = "alice"

	r.Bind("home", s)
	got, ok := r.Lookup("home")
	require.True(t, ok)
	assert.Same(t, s, got)

	byNick, ok := r.ByNick("ALICE")
	require.True(t, ok)
	assert.Same(t, s, byNick)

	r.Unbind("home", s)
	_, ok = r.Lookup("home")
	assert.False(t, ok)
}

func TestRegistryUnbindIgnoresStaleSession(t *testing.T) {
	r := NewRegistry()
	s1 := NewSession("1.1.1.1")
	s2 := NewSession("2.2.2.2")
	r.Bind("home", s1)
	r.Bind("home", s2)

	r.Unbind("home", s1)
	got, ok := r.Lookup("home")
	require.True(t, ok)
	assert.Same(t, s2, got)
}

func TestListenerAcceptLimitThrottlesHandoff(t *testing.T) {
	var handled int32
	var mu sync.Mutex
	l, err := Listen("127.0.0.1:0", func(c net.Conn) {
		mu.Lock()
		handled++
		mu.Unlock()
		c.Close()
	})
	require.NoError(t, err)
	defer l.Close()
	l.SetAcceptLimit(rate.Limit(1), 1)

	go l.Serve()

	for i := 0; i < 3; i++ {
		c, err := net.Dial("tcp", l.Addr().String())
		require.NoError(t, err)
		c.Close()
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	got := handled
	mu.Unlock()
	assert.LessOrEqual(t, got, int32(2), "burst of 1 plus in-flight token should cap early handoffs")
}
