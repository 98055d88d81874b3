package event

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerRunsHandlerAsync(t *testing.T) {
	r := New(nil)

	done := make(chan struct{})
	r.On("ping", func(sock net.Conn, contents []json.RawMessage) {
		close(done)
	})

	r.Trigger(nil, "ping", nil, false)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestTriggerInlineBlocksUntilHandlerReturns(t *testing.T) {
	r := New(nil)

	var ran bool
	r.On("client_disconnection", func(sock net.Conn, contents []json.RawMessage) {
		time.Sleep(10 * time.Millisecond)
		ran = true
	})

	r.Trigger(nil, "client_disconnection", nil, true)
	assert.True(t, ran)
}

func TestTriggerUnknownEventDoesNotPanic(t *testing.T) {
	r := New(nil)
	require.NotPanics(t, func() {
		r.Trigger(nil, "nonexistent", nil, false)
	})
}

func TestTriggerRunsAllHandlersInIsolation(t *testing.T) {
	r := New(nil)

	var mu sync.Mutex
	count := 0

	r.On("x", func(sock net.Conn, contents []json.RawMessage) {
		panic("boom")
	})
	r.On("x", func(sock net.Conn, contents []json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	r.Trigger(nil, "x", nil, true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
