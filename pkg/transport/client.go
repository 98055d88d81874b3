package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/lelabodugame/reverb/pkg/event"
	"github.com/lelabodugame/reverb/pkg/frame"
)

// Client dials a Server and dispatches whatever it receives through
// Events: a persistent receive goroutine, a server_stop sentinel that ends
// it, and a best-effort disconnection notice on local close.
type Client struct {
	Events *event.Registry

	log  *zap.SugaredLogger
	conn net.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	connected bool
}

// NewClient constructs a Client. It does not connect until Dial is called.
func NewClient(log *zap.SugaredLogger) *Client {
	return &Client{
		Events: event.New(log),
		log:    log,
	}
}

// Dial connects to addr and starts the receive goroutine.
func (c *Client) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	c.conn = conn

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	go c.receiveLoop()

	c.Events.Trigger(conn, EventConnection, nil, false)
	return nil
}

// Connected reports whether the client currently believes it is attached
// to a server.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LocalPort returns the ephemeral TCP port this client is bound to — the
// value the framework uses as owner_tag.
func (c *Client) LocalPort() int {
	if c.conn == nil {
		return 0
	}
	if a, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

func (c *Client) receiveLoop() {
	defer c.teardown()

	for {
		f, err := frame.ReadFrom(c.conn)
		if err != nil {
			if errors.Is(err, frame.ErrMalformedPacket) {
				if c.log != nil {
					c.log.Warnf("malformed packet from server: %v", err)
				}
				continue
			}
			if c.log != nil && !errors.Is(err, io.EOF) {
				c.log.Debugf("lost connection to server: %v", err)
			}
			return
		}

		if f.Name == PacketServerStop {
			if c.log != nil {
				c.log.Infof("server requested shutdown")
			}
			return
		}

		c.Events.Trigger(c.conn, f.Name, f.Contents, false)
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.Events.Trigger(c.conn, EventDisconnection, nil, false)
	}
}

// Send encodes name/contents and writes the frame to the server.
func (c *Client) Send(name string, contents ...any) error {
	buf, err := frame.Encode(name, contents...)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(buf)
	return err
}

// Close sends a best-effort client_disconnection notice naming this
// client's own peer tuple, then closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		_ = c.Send(EventClientDisconnection, c.conn.LocalAddr().String())
	}
	return c.conn.Close()
}
