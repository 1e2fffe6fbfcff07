// Package connectivity shapes wikiedit's outbound calls (wiki API, asset
// endpoints) as byte-in/byte-out Handlers and wraps them with the
// cross-cutting behaviour every remote call needs: timeout, logging,
// circuit breaking and, for idempotent reads only, retry.
//
//	h, closeFn, err := connectivity.HTTPFactory(connectivity.WithClient(c))(endpoint, cfg)
//	defer closeFn()
//	h = connectivity.Chain(
//		connectivity.Logging(logger, "mediawiki"),
//		connectivity.WithCircuitBreaker(cb, "mediawiki"),
//	)(h)
//	resp, err := h(ctx, form)
package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/wikiedit/kit"
)

// Handler is a transport-agnostic call: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a remote endpoint. The returned
// close function releases transport resources; it may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs each call with its duration and the request trace ID.
// Failures go out at warn level; the caller decides whether one ends its
// edit session.
func Logging(logger *slog.Logger, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			began := time.Now()
			resp, err := next(ctx, payload)
			attrs := []any{"service", service, "ms", time.Since(began).Milliseconds()}
			if t := kit.GetTraceID(ctx); t != "" {
				attrs = append(attrs, "trace_id", t)
			}
			if err != nil {
				logger.WarnContext(ctx, "connectivity: call failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "connectivity: call ok", append(attrs, "sent", len(payload), "received", len(resp))...)
			}
			return resp, err
		}
	}
}

// WithTimeout bounds each call to d; zero means no bound. Running out of
// time is reported as ErrCallTimeout.
func WithTimeout(d time.Duration, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			callCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			resp, err := next(callCtx, payload)
			if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &ErrCallTimeout{Service: service, After: d}
			}
			return resp, err
		}
	}
}

// WithRetry makes up to retries more attempts after a failure, waiting
// base, 2*base, 4*base... in between. Only wrap idempotent reads with it:
// wiki writes are never repeated automatically. Errors that would repeat
// identically (open circuit, 4xx) end the loop, as does ctx.
func WithRetry(retries int, base time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			for attempt := 1; err != nil && attempt <= retries; attempt++ {
				var p permanent
				if ctx.Err() != nil || (errors.As(err, &p) && p.Permanent()) {
					return nil, err
				}
				wait := base << (attempt - 1)
				if logger != nil {
					logger.WarnContext(ctx, "connectivity: retrying",
						"attempt", attempt, "of", retries, "wait_ms", wait.Milliseconds(), "error", err)
				}
				select {
				case <-ctx.Done():
					return nil, err
				case <-time.After(wait):
				}
				resp, err = next(ctx, payload)
			}
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}
