package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	events  []Event
	closed  bool
	failing bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.events = append(f.events, v.(Event))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestHub_BroadcastsAndDropsBrokenClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	healthy := &fakeConn{}
	broken := &fakeConn{failing: true}
	hub.Register(healthy)
	hub.Register(broken)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish("payment_verified", map[string]string{"payment_id": "pay_1"})

	require.Eventually(t, func() bool { return healthy.received() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, broken.closed)
	assert.Equal(t, "payment_verified", healthy.events[0].Type)

	hub.Unregister(healthy)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 200; i++ {
		hub.Publish("payment_verified", i)
	}

	var nilHub *Hub
	assert.NotPanics(t, func() { nilHub.Publish("x", nil) })
}

func TestHub_RegisterAndUnregisterAfterShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	attached := &fakeConn{}
	hub.Register(attached)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	late := &fakeConn{}
	returned := make(chan struct{})
	go func() {
		hub.Unregister(attached)
		hub.Register(late)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Register/Unregister blocked after the hub stopped")
	}
	assert.True(t, attached.closed)
	assert.True(t, late.closed)
	assert.Equal(t, 0, hub.ClientCount())
}
