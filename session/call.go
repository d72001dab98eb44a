package session

import (
	"context"
	"errors"

	"go-epc/sexp"
)

// Result carries the outcome of one outbound call: a value from a
// return reply, or an error (RemoteError, ProtocolError, or
// ErrSessionClosed).
type Result struct {
	Value sexp.Value
	Err   error
}

// Call is the pending handle for one outbound call. Its result is
// delivered exactly once on the Done channel.
type Call struct {
	UID    uint64
	Method string
	done   chan Result // buffered so the receive loop never blocks
}

func newCall(uid uint64, method string) *Call {
	return &Call{UID: uid, Method: method, done: make(chan Result, 1)}
}

// Done returns the channel the result arrives on.
func (c *Call) Done() <-chan Result {
	return c.done
}

// Wait blocks until the peer replies or ctx ends. A deadline maps to
// ErrCallTimeout so embedders can implement per-call timeouts atop the
// handle, which the base protocol deliberately does not have.
func (c *Call) Wait(ctx context.Context) (sexp.Value, error) {
	select {
	case res := <-c.done:
		return res.Value, res.Err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrCallTimeout
		}
		return nil, ctx.Err()
	}
}

// complete delivers the result. The pending table removes the call
// before completing it, so this runs at most once per call.
func (c *Call) complete(res Result) {
	c.done <- res
}
