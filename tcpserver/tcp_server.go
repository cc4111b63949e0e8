// Package tcpserver accepts TCP connections and runs one handler goroutine
// per connection until the server stops.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/sudokunet/idgenerator"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/safemap"
)

// acceptRetryDelay paces the accept loop after a failure such as running out
// of file descriptors.
const acceptRetryDelay = 50 * time.Millisecond

// NewHandlerFunc creates the handler for an accepted connection. It receives
// the assigned connection ID and the accepted net.Conn.
type NewHandlerFunc func(id uint32, conn net.Conn) ConnHandler

// TCPServer accepts connections and delegates each one to a handler created
// by NewHandler. Live handlers are tracked by ID. Stop closes the listener,
// closes every live connection and waits for all handler goroutines.
type TCPServer struct {
	Logger     logger.Logger
	Name       string
	Addr       string
	Listener   net.Listener
	Handlers   *safemap.SafeMap[uint32, ConnHandler]
	Running    atomic.Bool
	NewHandler NewHandlerFunc

	ids        *idgenerator.IdGenerator
	group      *errgroup.Group
	acceptDone chan struct{}
}

// New creates a server that will listen on addr.
//
// Parameters:
//   - name: Server name used in log lines
//   - addr: Listen address, host:port
//   - newHandler: Creates the handler for each accepted connection
//   - log: Logger for lifecycle and accept errors
//
// Returns:
//   - A stopped TCPServer; call Start to listen
func New(name, addr string, newHandler NewHandlerFunc, log logger.Logger) *TCPServer {
	return &TCPServer{
		Logger:     log,
		Name:       name,
		Addr:       addr,
		Handlers:   safemap.NewSafeMap[uint32, ConnHandler](),
		NewHandler: newHandler,
		ids:        idgenerator.NewIdGenerator(0),
	}
}

// Start binds Addr and begins the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Err(err), logger.Field{Key: "addr", Value: s.Addr})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.group = new(errgroup.Group)
	s.acceptDone = make(chan struct{})
	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	s.group.Go(func() error {
		defer close(s.acceptDone)
		s.AcceptLoop()
		return nil
	})

	return nil
}

// ListenAddr returns the bound address, which differs from Addr when Addr
// asked for port 0.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.Listener == nil {
		return nil
	}

	return s.Listener.Addr()
}

// Stop stops accepting, closes the listener, closes every live connection
// and waits until every handler goroutine has returned. Safe to call when
// the server is not running.
func (s *TCPServer) Stop() {
	if !s.Running.Swap(false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	if s.Listener != nil {
		_ = s.Listener.Close()
	}
	<-s.acceptDone

	s.Handlers.Range(func(_ uint32, h ConnHandler) bool {
		_ = h.Close()
		return true
	})

	_ = s.group.Wait()
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name), logger.Field{Key: "connections_served", Value: s.ids.Last()})
}

// RemoveHandler forgets the handler with the given id.
func (s *TCPServer) RemoveHandler(id uint32) {
	s.Handlers.Delete(id)
}

// GetHandler returns the live handler for id, if any.
func (s *TCPServer) GetHandler(id uint32) (ConnHandler, bool) {
	return s.Handlers.Load(id)
}

// AcceptLoop accepts connections until the listener is closed. Each
// connection gets the next ID, a handler from NewHandler and a goroutine in
// the server's group.
func (s *TCPServer) AcceptLoop() {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Err(err))
			time.Sleep(acceptRetryDelay)
			continue
		}

		id := s.ids.Id()
		h := s.NewHandler(id, conn)
		s.Handlers.Store(id, h)
		s.Logger.Debug("connection accepted", logger.Field{Key: "conn", Value: id}, logger.Field{Key: "remote", Value: conn.RemoteAddr().String()})

		s.group.Go(func() error {
			defer s.RemoveHandler(id)
			h.Handle()
			return nil
		})
	}
}
