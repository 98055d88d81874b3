package transport

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServerClient(t *testing.T) (*Server, *Client) {
	t.Helper()

	srv := NewServer(nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })

	cli := NewClient(nil)
	require.NoError(t, cli.Dial(srv.Addr().String()))
	t.Cleanup(func() { cli.Close() })

	return srv, cli
}

func TestClientConnectionEventFiresOnAccept(t *testing.T) {
	srv := NewServer(nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	defer srv.Stop()

	connected := make(chan struct{}, 1)
	srv.Events.On(EventClientConnection, func(sock net.Conn, contents []json.RawMessage) {
		connected <- struct{}{}
	})

	cli := NewClient(nil)
	require.NoError(t, cli.Dial(srv.Addr().String()))
	defer cli.Close()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("client_connection did not fire")
	}
}

func TestBroadcastDeliversToClient(t *testing.T) {
	srv, cli := newServerClient(t)

	got := make(chan []json.RawMessage, 1)
	cli.Events.On("server_sync", func(sock net.Conn, contents []json.RawMessage) {
		got <- contents
	})

	time.Sleep(20 * time.Millisecond) // allow accept to register the peer
	require.NoError(t, srv.Broadcast("server_sync", map[string]any{"u1": []any{"P", 1, 2}}))

	select {
	case contents := <-got:
		require.Len(t, contents, 1)
	case <-time.After(time.Second):
		t.Fatal("broadcast not received")
	}
}

func TestClientSendReachesServerHandler(t *testing.T) {
	srv, cli := newServerClient(t)

	got := make(chan string, 1)
	srv.Events.On("calling_server_computing", func(sock net.Conn, contents []json.RawMessage) {
		var uid string
		_ = json.Unmarshal(contents[0], &uid)
		got <- uid
	})

	require.NoError(t, cli.Send("calling_server_computing", "uid-123", "check_walk"))

	select {
	case uid := <-got:
		assert.Equal(t, "uid-123", uid)
	case <-time.After(time.Second):
		t.Fatal("server did not receive packet")
	}
}

func TestServerStopEndsClientReceiveLoop(t *testing.T) {
	srv, cli := newServerClient(t)

	disconnected := make(chan struct{}, 1)
	cli.Events.On(EventDisconnection, func(sock net.Conn, contents []json.RawMessage) {
		disconnected <- struct{}{}
	})

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Stop())

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("client did not observe disconnection after server_stop")
	}
}

func TestClientDisconnectionIsInlineOnServer(t *testing.T) {
	srv, cli := newServerClient(t)

	finished := make(chan struct{})
	srv.Events.On(EventClientDisconnection, func(sock net.Conn, contents []json.RawMessage) {
		time.Sleep(10 * time.Millisecond)
		close(finished)
	})

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cli.Close())

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("client_disconnection handler never observed")
	}
}
