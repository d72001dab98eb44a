package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"go-epc/sexp"
)

// ErrRateLimited is returned to the peer when the token bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit rejects inbound calls beyond r per second with a burst
// allowance, using a token bucket shared by every call that passes
// through this middleware instance.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (sexp.Value, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, inv)
		}
	}
}
