package kit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoRequest struct {
	Text string `json:"text"`
	User string `json:"user,omitempty"`
}

func (r *echoRequest) ActingUser() string { return r.User }

type echoResult struct {
	Text      string `json:"text"`
	User      string `json:"user"`
	Transport string `json:"transport"`
}

func connect(t *testing.T, srv *mcp.Server) *mcp.ClientSession {
	t.Helper()
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(&mcp.Implementation{Name: "kit-test", Version: "0.1.0"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func echoServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "kit-test", Version: "0.1.0"}, nil)
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, r *echoRequest) (any, error) {
		if r.Text == "" {
			return nil, errors.New("text is empty")
		}
		return echoResult{Text: r.Text, User: GetUserID(ctx), Transport: GetTransport(ctx)}, nil
	})
	return srv
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func TestRegisterMCPTool(t *testing.T) {
	cs := connect(t, echoServer())
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "Grew quickly.", "user": "alice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	got := resultText(t, res)
	for _, want := range []string{`"text":"Grew quickly."`, `"user":"alice"`, `"transport":"mcp"`} {
		if !strings.Contains(got, want) {
			t.Errorf("result %s missing %s", got, want)
		}
	}
}

func TestRegisterMCPTool_HandlerError(t *testing.T) {
	cs := connect(t, echoServer())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": ""},
	})
	if err != nil {
		t.Fatalf("handler errors must not be protocol errors: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "text is empty") {
		t.Errorf("want tool error, got %+v", res)
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" || GetTraceID(ctx) != "" {
		t.Fatal("empty context carries values")
	}
	if got := GetTransport(ctx); got != TransportCLI {
		t.Errorf("default transport = %q, want %q", got, TransportCLI)
	}

	ctx = WithTraceID(WithTransport(WithUserID(ctx, "Example"), TransportHTTP), "3f2a9c1d")
	if GetUserID(ctx) != "Example" || GetTransport(ctx) != TransportHTTP || GetTraceID(ctx) != "3f2a9c1d" {
		t.Errorf("user=%q transport=%q trace=%q", GetUserID(ctx), GetTransport(ctx), GetTraceID(ctx))
	}
}
