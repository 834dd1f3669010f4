// Package tcpserver accepts raw syslog streams over TCP. Each connection is
// one analysis run.
package tcpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:4000"

	// DefaultMaxConnections bounds concurrently handled connections.
	DefaultMaxConnections = 64

	// DefaultIdleTimeout closes connections that send nothing for this long.
	DefaultIdleTimeout = 5 * time.Minute
)

// Handler consumes one connection's byte stream. remote is the peer address.
// The stream ends at EOF, when ctx is cancelled, or after the idle timeout.
type Handler func(ctx context.Context, remote string, r io.Reader) error

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	MaxConnections int
	IdleTimeout    time.Duration
}

// Server listens for syslog text streams over TCP.
type Server struct {
	listener    net.Listener
	addr        string
	handler     Handler
	slots       chan struct{}
	idleTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a new TCP server. Default addr is "127.0.0.1:4000".
func NewServer(addr string, handler Handler, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	maxConns := DefaultMaxConnections
	idleTimeout := DefaultIdleTimeout
	if len(conf) > 0 {
		if conf[0].MaxConnections > 0 {
			maxConns = conf[0].MaxConnections
		}
		if conf[0].IdleTimeout > 0 {
			idleTimeout = conf[0].IdleTimeout
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		handler:     handler,
		slots:       make(chan struct{}, maxConns),
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		conns:       make(map[net.Conn]struct{}),
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}

			select {
			case s.slots <- struct{}{}:
			default:
				log.Printf("tcpserver: rejecting %s, %d connections already active", conn.RemoteAddr(), cap(s.slots))
				conn.Close()
				continue
			}
			s.track(conn)
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.slots }()
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	r := &deadlineReader{conn: conn, timeout: s.idleTimeout}
	if err := s.handler(s.ctx, remote, r); err != nil {
		if s.ctx.Err() != nil {
			log.Printf("tcpserver: connection %s aborted by shutdown", remote)
			return
		}
		log.Printf("tcpserver: connection %s: %v", remote, err)
	}
}

func (s *Server) track(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// Stop stops accepting connections, cancels in-flight handlers and waits for
// them to return.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// deadlineReader extends the read deadline before every read.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.conn.Read(p)
}
