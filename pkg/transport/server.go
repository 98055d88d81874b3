package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/lelabodugame/reverb/pkg/event"
	"github.com/lelabodugame/reverb/pkg/frame"
)

// Server accepts any number of Client connections and broadcasts or
// unicasts packets to them. It never initiates method calls itself; it
// only moves bytes and dispatches decoded packets through Events. An
// accept goroutine appends each accepted socket to a map keyed by peer
// address, and a per-client receive goroutine reads frames and dispatches
// them.
type Server struct {
	Events *event.Registry

	log *zap.SugaredLogger
	ln  net.Listener

	mu      sync.Mutex
	clients map[string]*peerConn
}

type peerConn struct {
	conn net.Conn

	writeMu sync.Mutex
}

func (p *peerConn) send(buf []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.conn.Write(buf)
	return err
}

// NewServer constructs a Server. The returned server does not listen until
// Listen is called.
func NewServer(log *zap.SugaredLogger) *Server {
	return &Server{
		Events:  event.New(log),
		log:     log,
		clients: map[string]*peerConn{},
	}
}

// Listen binds addr and starts an accept goroutine in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, useful when addr was ":0" in tests.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.log != nil {
				s.log.Debugf("accept loop exiting: %v", err)
			}
			return
		}

		key := conn.RemoteAddr().String()
		p := &peerConn{conn: conn}

		s.mu.Lock()
		s.clients[key] = p
		s.mu.Unlock()

		// client_connection must be inline so an application's catch-up
		// handler runs before this goroutine starts reading.
		s.Events.Trigger(conn, EventClientConnection, nil, true)

		go s.receiveLoop(conn, key)
	}
}

func (s *Server) receiveLoop(conn net.Conn, key string) {
	defer s.removeClient(conn, key)

	for {
		f, err := frame.ReadFrom(conn)
		if err != nil {
			if errors.Is(err, frame.ErrMalformedPacket) {
				if s.log != nil {
					s.log.Warnf("malformed packet from %v: %v", key, err)
				}
				continue
			}
			if s.log != nil && !errors.Is(err, io.EOF) {
				s.log.Debugf("connection %v closed: %v", key, err)
			}
			// A peer that hangs up without sending the notice still
			// leaves; inline for the same reason as the packet path.
			s.Events.Trigger(conn, EventClientDisconnection, nil, true)
			return
		}

		if f.Name == EventClientDisconnection {
			// Inline so the teardown below observes a finished handler.
			s.Events.Trigger(conn, EventClientDisconnection, f.Contents, true)
			return
		}

		s.Events.Trigger(conn, f.Name, f.Contents, false)
	}
}

func (s *Server) removeClient(conn net.Conn, key string) {
	s.mu.Lock()
	delete(s.clients, key)
	s.mu.Unlock()
	conn.Close()
}

// Broadcast encodes name/contents once and writes it to every connected
// client. A per-peer write failure (broken pipe) is logged and does not
// abort delivery to the remaining peers.
func (s *Server) Broadcast(name string, contents ...any) error {
	buf, err := frame.Encode(name, contents...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	peers := make([]*peerConn, 0, len(s.clients))
	for _, p := range s.clients {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if err := p.send(buf); err != nil && s.log != nil {
			s.log.Warnf("broken pipe broadcasting %q to %v: %v", name, p.conn.RemoteAddr(), err)
		}
	}
	return nil
}

// SendTo encodes name/contents and writes it to a single connection, used
// for the one-shot catch-up sync sent to a newly connected client.
func (s *Server) SendTo(conn net.Conn, name string, contents ...any) error {
	buf, err := frame.Encode(name, contents...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, ok := s.clients[conn.RemoteAddr().String()]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no such connected client %v", conn.RemoteAddr())
	}

	if err := p.send(buf); err != nil {
		if s.log != nil {
			s.log.Warnf("broken pipe sending %q to %v: %v", name, conn.RemoteAddr(), err)
		}
		return err
	}
	return nil
}

// Stop sends server_stop to every connected client, then closes the
// listener and every connection.
func (s *Server) Stop() error {
	_ = s.Broadcast(PacketServerStop)

	s.mu.Lock()
	peers := make([]*peerConn, 0, len(s.clients))
	for _, p := range s.clients {
		peers = append(peers, p)
	}
	s.clients = map[string]*peerConn{}
	s.mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}

	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Connections returns a snapshot of every currently connected socket.
func (s *Server) Connections() []net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Conn, 0, len(s.clients))
	for _, p := range s.clients {
		out = append(out, p.conn)
	}
	return out
}
