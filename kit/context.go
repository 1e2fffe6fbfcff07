// Package kit carries request-scoped facts shared by the HTTP and MCP
// surfaces (acting wiki user, transport, trace ID) and the typed MCP tool
// registration used by inlineedit.
package kit

import "context"

// Transports recorded with each edit outcome.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
	TransportCLI  = "cli"
)

type ctxKey int

const (
	userKey ctxKey = iota
	transportKey
	traceKey
)

// WithUserID records the acting wiki user. Empty means anonymous.
func WithUserID(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUserID returns the acting wiki user, "" when anonymous.
func GetUserID(ctx context.Context) string { return str(ctx, userKey) }

// WithTransport records which surface a call came through.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

// GetTransport returns the recorded transport, TransportCLI when none was set.
func GetTransport(ctx context.Context) string {
	if t := str(ctx, transportKey); t != "" {
		return t
	}
	return TransportCLI
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey, id)
}

func GetTraceID(ctx context.Context) string { return str(ctx, traceKey) }

func str(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}
