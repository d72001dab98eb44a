package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"go-epc/sexp"
)

// Logging logs every inbound call with its duration and outcome.
func Logging(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (sexp.Value, error) {
			start := time.Now()
			v, err := next(ctx, inv)
			ev := logger.Info()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev.Str("method", inv.Method).
				Int("args", len(inv.Args)).
				Dur("duration", time.Since(start)).
				Msg("dispatched call")
			return v, err
		}
	}
}
