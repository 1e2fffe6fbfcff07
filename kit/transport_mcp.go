package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler serves one MCP tool call with its decoded arguments.
type ToolHandler[Req any] func(ctx context.Context, req *Req) (any, error)

// Actor is implemented by tool requests that name the wiki user the call
// is made for.
type Actor interface {
	ActingUser() string
}

// RegisterMCPTool adds tool to srv. The call arguments are decoded into a
// fresh Req; the handler's result is returned as JSON text. Decode and
// handler failures become tool errors so the client sees the message.
func RegisterMCPTool[Req any](srv *mcp.Server, tool *mcp.Tool, handle ToolHandler[Req]) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := new(Req)
		if len(call.Params.Arguments) > 0 {
			if err := json.Unmarshal(call.Params.Arguments, req); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}

		ctx = WithTransport(ctx, TransportMCP)
		if a, ok := any(req).(Actor); ok {
			if u := a.ActingUser(); u != "" {
				ctx = WithUserID(ctx, u)
			}
		}

		out, err := handle(ctx, req)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return toolError(fmt.Errorf("encode result: %w", err)), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	res := &mcp.CallToolResult{}
	res.SetError(err)
	return res
}
