package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go-epc/message"
	"go-epc/middleware"
	"go-epc/sexp"
)

// dispatch routes one decoded inbound message. Calls and method
// listings produce exactly one outbound reply; replies resolve a
// pending entry; anything else is logged and dropped.
func (s *Session) dispatch(m *message.Message) {
	switch m.Kind {
	case message.KindCall:
		s.handleCall(m)

	case message.KindMethods:
		s.handleMethods(m)

	case message.KindReturn:
		c, ok := s.pending.take(m.UID)
		if !ok {
			s.anomaly(m)
			return
		}
		c.complete(Result{Value: m.Value})

	case message.KindReturnError:
		c, ok := s.pending.take(m.UID)
		if !ok {
			s.anomaly(m)
			return
		}
		c.complete(Result{Err: &RemoteError{Method: c.Method, Desc: m.Text}})

	case message.KindEPCError, message.KindMethodsError:
		c, ok := s.pending.take(m.UID)
		if !ok {
			s.anomaly(m)
			return
		}
		c.complete(Result{Err: &ProtocolError{Method: c.Method, Desc: m.Text}})

	default:
		// Forward compatibility: an unknown tag must not kill the
		// session, and replying would mean guessing at the peer's
		// uid space. Log and continue.
		s.logger.Warn().
			Str("tag", m.Tag).
			Uint64("uid", m.UID).
			Msg("ignoring unknown message tag")
	}
}

// handleCall invokes the named local function through the middleware
// chain and replies with return, return-error, or epc-error.
func (s *Session) handleCall(m *message.Message) {
	value, invokeErr, stack := s.safeInvoke(m.Method, m.Args)

	var reply *message.Message
	var unknown *unknownMethodError
	switch {
	case invokeErr == nil:
		reply = &message.Message{Kind: message.KindReturn, UID: m.UID, Value: value}
	case errors.As(invokeErr, &unknown):
		reply = &message.Message{
			Kind: message.KindEPCError,
			UID:  m.UID,
			Text: fmt.Sprintf("EPC-ERROR: No such method : %s", unknown.name),
		}
	default:
		if s.hook != nil {
			// Side effects only; the reply below is sent unchanged.
			s.hook(m.Method, m.Args, invokeErr, stack)
		}
		reply = &message.Message{
			Kind: message.KindReturnError,
			UID:  m.UID,
			Text: invokeErr.Error(),
		}
	}

	if err := s.send(reply); err != nil {
		s.logger.Error().Err(err).Str("method", m.Method).Msg("failed to send reply")
	}
}

// safeInvoke runs the middleware chain over the registry lookup and
// converts a handler panic into an error, so a buggy function can
// never take the receive loop down. The panic stack is captured for
// the debugger hook.
func (s *Session) safeInvoke(method string, args sexp.List) (value sexp.Value, err error, stack []byte) {
	defer func() {
		if r := recover(); r != nil {
			stack = debug.Stack()
			err = fmt.Errorf("panic in method %q: %v", method, r)
		}
	}()
	value, err = s.handler(context.Background(), &middleware.Invocation{Method: method, Args: args})
	return value, err, nil
}

// invoke is the final handler under the middleware chain: a plain
// table read against the registry, then the call.
func (s *Session) invoke(ctx context.Context, inv *middleware.Invocation) (sexp.Value, error) {
	m, ok := s.reg.Lookup(inv.Method)
	if !ok {
		return nil, &unknownMethodError{name: inv.Method}
	}
	return m.Handler(ctx, inv.Args)
}

// handleMethods replies with the (name argspec docstring) row for
// every registered function.
func (s *Session) handleMethods(m *message.Message) {
	methods := s.reg.Methods()
	rows := make(sexp.List, len(methods))
	for i, method := range methods {
		argspec := method.ArgSpec
		if argspec == nil {
			argspec = sexp.List{}
		}
		rows[i] = sexp.List{sexp.Symbol(method.Name), argspec, sexp.String(method.Doc)}
	}

	reply := &message.Message{Kind: message.KindReturn, UID: m.UID, Value: rows}
	if err := s.send(reply); err != nil {
		s.logger.Error().Err(err).Msg("failed to send methods reply")
	}
}

// anomaly logs a reply whose uid matches no pending call: already
// resolved, drained, or simply bogus. Non-fatal by design of the
// correlation table.
func (s *Session) anomaly(m *message.Message) {
	s.logger.Warn().
		Str("kind", string(m.Kind)).
		Uint64("uid", m.UID).
		Msg("dropping reply for unknown call id")
}

// unknownMethodError marks a registry lookup miss so handleCall can
// report it as epc-error rather than return-error. Middleware sees it
// as an ordinary error.
type unknownMethodError struct {
	name string
}

func (e *unknownMethodError) Error() string {
	return fmt.Sprintf("no such method: %s", e.name)
}
