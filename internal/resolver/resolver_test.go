package resolver

import (
	"sync/atomic"
	"testing"
	"time"
)

type testOwner struct{ alive int32 }

func (o *testOwner) Alive() bool { return atomic.LoadInt32(&o.alive) != 0 }

func TestResolveHostLocalhost(t *testing.T) {
	r := New(2 * time.Second)
	owner := &testOwner{alive: 1}
	done := make(chan HostResult, 1)
	r.ResolveHost(owner, "localhost", func(res HostResult) { done <- res })

	select {
	case res := <-done:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if len(res.Addrs) == 0 {
			t.Error("expected at least one address for localhost")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
}

func TestCancelAllSkipsDeadOwner(t *testing.T) {
	r := New(2 * time.Second)
	owner := &testOwner{alive: 1}
	called := make(chan struct{}, 1)
	r.ResolveHost(owner, "localhost", func(HostResult) { called <- struct{}{} })
	atomic.StoreInt32(&owner.alive, 0)
	r.CancelAll(owner)

	select {
	case <-called:
		t.Error("callback should not fire for a dead owner")
	case <-time.After(200 * time.Millisecond):
	}
}
