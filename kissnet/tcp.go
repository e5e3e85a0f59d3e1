// Package kissnet exposes the KISS protocol over TCP and serial
// transports (SPEC_FULL.md §6 "KISS TCP"), wiring each client connection
// to a kiss.Session and broadcasting channel traffic to every attached
// client the way a hardware TNC's KISS port does.
package kissnet

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	rsxid "github.com/rs/xid"

	"github.com/la5nta/axlink/kiss"
)

// DefaultCapacity is the default maximum number of simultaneous KISS TCP
// clients (SPEC_FULL.md §6).
const DefaultCapacity = 3

// TCPServer accepts KISS clients on a TCP listener and fans received
// channel traffic out to all of them, the way the agwpe port/demux pair
// fans AGWPE frames out to subscribers.
type TCPServer struct {
	ln       net.Listener
	dispatch kiss.Dispatcher
	capacity int
	log      *log.Logger

	mu      sync.Mutex
	clients map[*tcpClient]struct{}
}

// NewTCPServer starts listening on addr, accepting up to capacity
// simultaneous clients (0 selects DefaultCapacity).
func NewTCPServer(addr string, dispatch kiss.Dispatcher, capacity int, logger *log.Logger) (*TCPServer, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kissnet: listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TCPServer{
		ln:       ln,
		dispatch: dispatch,
		capacity: capacity,
		log:      logger,
		clients:  make(map[*tcpClient]struct{}),
	}, nil
}

func (s *TCPServer) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is canceled or the listener closes.
func (s *TCPServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if s.atCapacity() {
			s.log.Warn("kiss tcp client refused, at capacity", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		s.accept(conn)
	}
}

func (s *TCPServer) atCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients) >= s.capacity
}

func (s *TCPServer) accept(conn net.Conn) {
	c := &tcpClient{id: rsxid.New(), conn: conn, w: bufio.NewWriter(conn)}
	c.session = kiss.NewSession(c, s.dispatch)
	c.session.OnError = func(err error) {
		s.log.Debug("kiss decode error", "client", c.id, "remote", conn.RemoteAddr(), "err", err)
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.log.Info("kiss tcp client connected", "client", c.id, "remote", conn.RemoteAddr())
	go s.serveClient(c)
}

func (s *TCPServer) serveClient(c *tcpClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.session.Feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Broadcast writes a fully-encapsulated KISS frame to every attached
// client, the way a hardware TNC echoes received channel traffic to all
// connected hosts.
func (s *TCPServer) Broadcast(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if err := c.Send(raw); err != nil {
			s.log.Debug("kiss tcp write failed", "remote", c.conn.RemoteAddr(), "err", err)
		}
	}
}

func (s *TCPServer) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = nil
	s.mu.Unlock()
	return s.ln.Close()
}

// tcpClient implements kiss.Sender over a single TCP connection.
type tcpClient struct {
	id      rsxid.ID // distinguishes clients in logs; not threaded into dlq.Event.ClientID (raw KISS carries no DLSM addressing)
	conn    net.Conn
	w       *bufio.Writer
	session *kiss.Session

	mu sync.Mutex
}

func (c *tcpClient) Send(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Reset(c.conn)
	if _, err := c.w.Write(raw); err != nil {
		return err
	}
	return c.w.Flush()
}
