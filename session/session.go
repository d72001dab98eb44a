// Package session implements the EPC protocol engine: one Session per
// stream connection, with a receive loop feeding the dispatcher and a
// correlation table matching asynchronous replies to pending calls.
//
// Both peers are symmetric once connected: either side registers
// functions and either side calls the other's. Only who dialed differs.
//
//	goroutine-1 ──Call(uid=0)──┐
//	goroutine-2 ──Call(uid=1)──┼──→ one stream ──→ peer
//	goroutine-3 ──Call(uid=2)──┘
//
//	Serve loop: ←── (return 1 ...) → pending[1] → goroutine-2 wakes up
package session

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"go-epc/message"
	"go-epc/middleware"
	"go-epc/protocol"
	"go-epc/registry"
	"go-epc/sexp"
)

// DebugHook is invoked with the failure context before a return-error
// reply is sent, purely for side effects (breakpoint, dump). It must
// not alter or suppress the reply; the engine sends the same error
// text regardless. stack is non-nil when a panic unwound on the
// dispatch goroutine; a panic recovered inside a middleware arrives
// as a plain error.
type DebugHook func(method string, args sexp.List, err error, stack []byte)

// Session owns exactly one connection: its uid counter, its pending
// table, and a reference to the (possibly shared) function registry.
type Session struct {
	conn    io.ReadWriteCloser
	reg     *registry.Registry
	pending *pendingTable
	handler middleware.HandlerFunc
	hook    DebugHook
	logger  zerolog.Logger

	writeMu sync.Mutex // one frame at a time on the wire

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger. The default logs to stderr at
// warn level and above.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMiddleware wraps inbound dispatch with the given middlewares, in
// order.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Session) {
		s.handler = middleware.Chain(mws...)(s.invoke)
	}
}

// WithDebugHook installs the post-mortem hook run on local handler
// failure.
func WithDebugHook(hook DebugHook) Option {
	return func(s *Session) { s.hook = hook }
}

// New creates a session over conn. reg may be nil for a peer that
// exposes no functions. The caller owns the receive loop: run Serve,
// typically in its own goroutine, one per connection.
func New(conn io.ReadWriteCloser, reg *registry.Registry, opts ...Option) *Session {
	if reg == nil {
		reg = registry.New()
	}
	s := &Session{
		conn:    conn,
		reg:     reg,
		pending: newPendingTable(),
		logger:  zerolog.New(os.Stderr).Level(zerolog.WarnLevel),
	}
	s.handler = s.invoke
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the function registry this session dispatches into.
func (s *Session) Registry() *registry.Registry {
	return s.reg
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Serve runs the receive loop until the stream ends: read one frame,
// decode it, dispatch it, repeat. Dispatch is strictly sequential:
// inbound messages on one connection are processed in arrival order,
// and the reply for a call is written before the next payload is read.
//
// Returns nil on a clean close (peer shut down at a frame boundary, or
// Close was called locally) and the transport or decode error
// otherwise. Either way the session is closed and every pending call
// has been failed with ErrSessionClosed on return.
func (s *Session) Serve() error {
	defer s.Close()
	for {
		payload, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if err == io.EOF || s.closed.Load() {
				return nil
			}
			s.logger.Error().Err(err).Msg("receive failed")
			return err
		}

		msg, err := message.Decode(payload)
		if err != nil {
			// Framing trust is broken; no resynchronization.
			s.logger.Error().Err(err).Msg("malformed message")
			return err
		}
		s.dispatch(msg)
	}
}

// Call invokes the peer's method asynchronously and returns the
// pending handle. The result arrives later on the handle; use Wait or
// Done.
func (s *Session) Call(method string, args sexp.List) (*Call, error) {
	return s.issue(message.KindCall, method, args)
}

// CallWait is Call followed by Wait on the handle.
func (s *Session) CallWait(ctx context.Context, method string, args sexp.List) (sexp.Value, error) {
	c, err := s.Call(method, args)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx)
}

// Methods asks the peer for its registered functions. The reply value
// is a list of (name argspec docstring) rows.
func (s *Session) Methods() (*Call, error) {
	return s.issue(message.KindMethods, "methods", nil)
}

// MethodsWait is Methods followed by Wait on the handle.
func (s *Session) MethodsWait(ctx context.Context) (sexp.Value, error) {
	c, err := s.Methods()
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx)
}

func (s *Session) issue(kind message.Kind, method string, args sexp.List) (*Call, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	uid := s.pending.nextUID()
	c := newCall(uid, method)
	// Register before sending so a fast reply cannot race the table.
	s.pending.register(c, ErrSessionClosed)

	msg := &message.Message{Kind: kind, UID: uid, Method: method, Args: args}
	if err := s.send(msg); err != nil {
		// Clean up: the peer never saw this uid
		_, _ = s.pending.take(uid)
		return nil, err
	}
	return c, nil
}

// send serializes and writes one message. The write mutex keeps frames
// from interleaving when the dispatch path and callers write
// concurrently.
func (s *Session) send(m *message.Message) error {
	payload, err := m.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, payload)
}

// Close tears the session down: closes the stream and fails every
// pending call with ErrSessionClosed, each exactly once. Idempotent
// and safe to call concurrently with the receive loop.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
		s.pending.drain(ErrSessionClosed)
	})
	return s.closeErr
}
