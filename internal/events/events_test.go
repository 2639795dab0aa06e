package events

import (
	"testing"
	"time"

	"github.com/netcrawl/netcrawl/internal/fsm"
)

func TestNoOpBusNeverPanics(t *testing.T) {
	b := NewBus("")
	tr, err := fsm.CreateTransition(1, fsm.Queued, fsm.Connecting, "")
	if err != nil {
		t.Fatal(err)
	}
	b.Publish(tr) // must not panic, dial, or block
	if err := b.Close(); err != nil {
		t.Errorf("Close on no-op bus: %v", err)
	}
}

func TestPublishOnUnreachableRedisDoesNotBlockLong(t *testing.T) {
	b := NewBus("127.0.0.1:1") // nothing listens here
	tr, err := fsm.CreateTransition(1, fsm.Connecting, fsm.Error, "boom")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		b.Publish(tr)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish against an unreachable Redis must not block indefinitely")
	}
}
