// Package server implements the listening side of an EPC peer: it
// accepts stream connections, spins up one session per connection, and
// shares a single function registry across all of them.
//
// Connection lifecycle:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → session.Serve (sequential frame read → dispatch → reply)
//	  → on return: session removed, pending calls drained
//
// The server prints its bound port on request so a launching process
// (an editor spawning this worker) can discover where to connect.
package server

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go-epc/middleware"
	"go-epc/registry"
	"go-epc/session"
)

// Server accepts connections and serves the shared registry to every
// connected peer. Any live session can also be used for outbound calls
// in the server→client direction.
type Server struct {
	reg         *registry.Registry
	middlewares []middleware.Middleware
	hook        session.DebugHook
	logger      zerolog.Logger

	listener net.Listener
	wg       sync.WaitGroup // live connections, for graceful shutdown
	shutdown atomic.Bool    // suppresses the Accept error during Close

	mu           sync.Mutex
	sessions     map[*session.Session]struct{}
	onConnect    func(*session.Session)
	onDisconnect func(*session.Session)
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Server) { s.reg = reg }
}

// WithDebugHook installs a post-mortem hook on every session.
func WithDebugHook(hook session.DebugHook) Option {
	return func(s *Server) { s.hook = hook }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		reg:      registry.New(),
		logger:   zerolog.New(os.Stderr).Level(zerolog.WarnLevel),
		sessions: make(map[*session.Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the shared function registry.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Register publishes a handler for remote invocation.
func (s *Server) Register(name string, h registry.Handler, doc string) {
	s.reg.Register(name, h, doc)
}

// RegisterFunc publishes an ordinary Go function via the reflection
// adapter.
func (s *Server) RegisterFunc(name string, fn any, doc string) error {
	return s.reg.RegisterFunc(name, fn, doc)
}

// Unregister removes a published function.
func (s *Server) Unregister(name string) bool {
	return s.reg.Unregister(name)
}

// Use appends a dispatch middleware. Must be called before Serve;
// middlewares apply to sessions created afterwards.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// OnConnect registers a callback run with each newly connected
// session. Must be called before Serve.
func (s *Server) OnConnect(fn func(*session.Session)) { s.onConnect = fn }

// OnDisconnect registers a callback run after a session ends. Must be
// called before Serve.
func (s *Server) OnDisconnect(fn func(*session.Session)) { s.onDisconnect = fn }

// Listen binds the listener without accepting yet, so the bound port
// is known before Serve blocks. address may use port 0 to let the
// kernel pick.
func (s *Server) Listen(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 when not listening on TCP.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// PrintPort writes the bound port and a newline to w (default
// os.Stdout when w is nil). The launching process reads this line to
// discover where to connect, so call it after Listen and before any
// other stdout traffic.
func (s *Server) PrintPort(w io.Writer) error {
	if s.listener == nil {
		return fmt.Errorf("server: not listening")
	}
	if w == nil {
		w = os.Stdout
	}
	_, err := io.WriteString(w, strconv.Itoa(s.Port())+"\n")
	return err
}

// Serve runs the accept loop until Shutdown. Each connection gets its
// own goroutine and session; the sessions share the server's registry.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("server: Serve before Listen")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// During shutdown the listener close makes Accept fail;
			// the flag distinguishes that from a real error.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(network, address string) error {
	if err := s.Listen(network, address); err != nil {
		return err
	}
	return s.Serve()
}

// ServeConn runs one already-established connection as a session,
// blocking until it ends. Used by alternative transports (websocket
// upgrades) and by Serve itself.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	opts := []session.Option{session.WithLogger(s.logger)}
	if len(s.middlewares) > 0 {
		opts = append(opts, session.WithMiddleware(s.middlewares...))
	}
	if s.hook != nil {
		opts = append(opts, session.WithDebugHook(s.hook))
	}
	sess := session.New(conn, s.reg, opts...)

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	if s.onConnect != nil {
		s.onConnect(sess)
	}

	if err := sess.Serve(); err != nil {
		s.logger.Warn().Err(err).Msg("session ended with error")
	}

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	if s.onDisconnect != nil {
		s.onDisconnect(sess)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	s.logger.Debug().Stringer("peer", conn.RemoteAddr()).Msg("connection accepted")
	s.ServeConn(conn)
}

// Sessions returns a snapshot of the currently connected sessions, in
// no particular order. Any of them can issue outbound calls.
func (s *Server) Sessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Shutdown stops accepting, closes every live session (failing their
// pending calls), and waits up to timeout for connection goroutines to
// finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	// Flag first: closing the listener fires the Accept error, and
	// Serve must see the flag by then to return nil.
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	for _, sess := range s.Sessions() {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for sessions to finish")
	}
}
