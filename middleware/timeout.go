package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-epc/sexp"
)

// ErrHandlerTimeout is returned to the peer when a handler exceeds the
// Timeout middleware's budget.
var ErrHandlerTimeout = errors.New("handler timed out")

type timeoutResult struct {
	value sexp.Value
	err   error
}

// Timeout fails an inbound call whose handler runs longer than d. The
// handler keeps running in its goroutine; the context it received is
// cancelled so cooperative handlers can stop early.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (sexp.Value, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan timeoutResult, 1)
			go func() {
				// The handler runs on this goroutine, out of reach of
				// the dispatch loop's own recover. A panic here must
				// become an error result, not a process crash.
				defer func() {
					if r := recover(); r != nil {
						done <- timeoutResult{err: fmt.Errorf("panic in method %q: %v", inv.Method, r)}
					}
				}()
				v, err := next(ctx, inv)
				done <- timeoutResult{value: v, err: err}
			}()

			select {
			case res := <-done:
				return res.value, res.err
			case <-ctx.Done():
				return nil, ErrHandlerTimeout
			}
		}
	}
}
