// Package middleware implements the dispatch middleware chain applied
// to inbound calls on a session.
//
// A middleware wraps the handler lookup and invocation; an error
// returned from the chain reaches the remote peer as a return-error,
// exactly like an error from the handler itself.
package middleware

import (
	"context"

	"go-epc/sexp"
)

// Invocation describes one inbound call as seen by middleware.
type Invocation struct {
	Method string
	Args   sexp.List
}

type HandlerFunc func(ctx context.Context, inv *Invocation) (sexp.Value, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one.
//
// Chain(A, B, C)(handler) wraps as A(B(C(handler))): A sees the
// invocation first and the result last (onion model).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
