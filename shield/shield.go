// Package shield is the HTTP middleware in front of the wikiedit API.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//		r.Use(mw)
//	}
package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/wikiedit/kit"
)

type loggerKey struct{}

// UserHeader carries the wiki user name the caller acts as. The wiki
// remains the authority on what that user may do.
const UserHeader = "X-Wiki-User"

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-ID"

// MaxRequestBody caps API request bodies. An edited fragment plus its
// summary is small; the cap leaves room for very long table rows.
const MaxRequestBody = 1 << 20

// DefaultStack is SecurityHeaders, MaxBody, TraceID then ActingUser.
func DefaultStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(MaxRequestBody),
		TraceID,
		ActingUser,
	}
}

// DefaultHeaders are set on every API response. Fragment HTML may embed
// wiki images, hence img-src https:.
func DefaultHeaders() http.Header {
	return http.Header{
		"Content-Security-Policy": {"default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; frame-ancestors 'none'"},
		"X-Frame-Options":         {"DENY"},
		"X-Content-Type-Options":  {"nosniff"},
		"Referrer-Policy":         {"strict-origin-when-cross-origin"},
	}
}

// SecurityHeaders copies h onto every response.
func SecurityHeaders(h http.Header) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range h {
				w.Header()[k] = v
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody limits request bodies to n bytes.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TraceID tags the request with a trace ID, reusing the caller's
// TraceHeader when it is 8 to 32 hex characters. The ID goes into the
// context, the response header and a request logger for GetLogger.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TraceHeader)
		if !validTrace(id) {
			id = newTrace()
		}
		w.Header().Set(TraceHeader, id)

		logger := slog.Default().With("trace_id", id, "method", r.Method, "path", r.URL.Path)
		ctx := kit.WithTraceID(r.Context(), id)
		ctx = kit.WithTransport(ctx, kit.TransportHTTP)
		ctx = context.WithValue(ctx, loggerKey{}, logger)
		logger.Debug("shield: request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTrace() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func validTrace(id string) bool {
	if len(id) < 8 || len(id) > 32 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// ActingUser records the UserHeader value with kit.WithUserID.
func ActingUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := r.Header.Get(UserHeader); u != "" {
			r = r.WithContext(kit.WithUserID(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

// GetLogger returns the request logger set by TraceID, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
