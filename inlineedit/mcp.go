package inlineedit

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/kit"
)

// RegisterMCP registers the wikiedit tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerOpenViewTool(srv)
	s.registerGetViewTool(srv)
	s.registerLocateTool(srv)
	s.registerEditTool(srv)
	s.registerCancelTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- open_view ---

type openViewRequest struct {
	Title string `json:"title"`
}

func (s *Service) registerOpenViewTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wikiedit_open_view",
		Description: "Open a wiki page for inline editing. Returns the view ID and the editable fragments (paragraphs, list items, replies, table captions and cells) with their text.",
		InputSchema: inputSchema(map[string]any{
			"title": map[string]any{"type": "string", "description": "Page title"},
		}, []string{"title"}),
	}

	handle := func(ctx context.Context, r *openViewRequest) (any, error) {
		v, err := s.OpenView(ctx, r.Title)
		if err != nil {
			return nil, err
		}
		return viewJSON(v), nil
	}

	kit.RegisterMCPTool(srv, tool, handle)
}

// --- get_view ---

type getViewRequest struct {
	ViewID string `json:"view_id"`
	HTML   bool   `json:"html,omitempty"`
}

func (s *Service) registerGetViewTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wikiedit_get_view",
		Description: "List the current fragments of an open view, optionally with the rendered HTML.",
		InputSchema: inputSchema(map[string]any{
			"view_id": map[string]any{"type": "string", "description": "View ID from wikiedit_open_view"},
			"html":    map[string]any{"type": "boolean", "description": "Include the rendered content HTML"},
		}, []string{"view_id"}),
	}

	handle := func(ctx context.Context, r *getViewRequest) (any, error) {
		v, err := s.View(r.ViewID)
		if err != nil {
			return nil, err
		}
		out := struct {
			viewResponse
			HTML string `json:"html,omitempty"`
		}{viewResponse: viewJSON(v)}
		if r.HTML {
			out.HTML = v.HTML()
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, handle)
}

// --- locate ---

type locateRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (s *Service) registerLocateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wikiedit_locate",
		Description: "Find the single source line of a page containing the given text, and the excerpt an inline edit would change.",
		InputSchema: inputSchema(map[string]any{
			"title": map[string]any{"type": "string", "description": "Page title"},
			"text":  map[string]any{"type": "string", "description": "Visible text of the fragment"},
		}, []string{"title", "text"}),
	}

	handle := func(ctx context.Context, r *locateRequest) (any, error) {
		return s.Locate(ctx, r.Title, r.Text)
	}

	kit.RegisterMCPTool(srv, tool, handle)
}

// --- edit ---

type editRequest struct {
	ViewID     string `json:"view_id"`
	FragmentID string `json:"fragment_id"`
	Text       string `json:"text"`
	Summary    string `json:"summary,omitempty"`
	Minor      bool   `json:"minor,omitempty"`
	User       string `json:"user,omitempty"`
}

func (r *editRequest) ActingUser() string { return r.User }

func (s *Service) registerEditTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wikiedit_edit",
		Description: "Replace the source text of one fragment and save the page. An empty text deletes the fragment. When the fragment cannot be pinned to one source line the result is a handover with the section editor URL and nothing is saved.",
		InputSchema: inputSchema(map[string]any{
			"view_id":     map[string]any{"type": "string", "description": "View ID from wikiedit_open_view"},
			"fragment_id": map[string]any{"type": "string", "description": "Fragment ID"},
			"text":        map[string]any{"type": "string", "description": "New source text of the fragment"},
			"summary":     map[string]any{"type": "string", "description": "Edit summary (default: generated)"},
			"minor":       map[string]any{"type": "boolean", "description": "Mark as a minor edit"},
			"user":        map[string]any{"type": "string", "description": "Wiki user the edit is made for (audit only)"},
		}, []string{"view_id", "fragment_id", "text"}),
	}

	handle := func(ctx context.Context, r *editRequest) (any, error) {
		info, err := s.BeginEdit(ctx, r.ViewID, r.FragmentID)
		if err != nil {
			return nil, err
		}
		if info.State != session.Editing {
			return info, nil
		}
		id := info.ID
		info, err = s.Submit(ctx, id, session.Submission{Text: r.Text, Summary: r.Summary, Minor: r.Minor})
		if err != nil {
			// No one is left to retry: restore the fragment, or forget the
			// session when the page was already saved.
			if _, cerr := s.Cancel(ctx, id); cerr != nil {
				s.drop(id)
			}
			return nil, fmt.Errorf("edit %s: %w", r.FragmentID, err)
		}
		return info, nil
	}

	kit.RegisterMCPTool(srv, tool, handle)
}

// --- cancel ---

type cancelRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Service) registerCancelTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "wikiedit_cancel",
		Description: "Abandon an open edit session and restore the fragment.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Session ID"},
		}, []string{"session_id"}),
	}

	handle := func(ctx context.Context, r *cancelRequest) (any, error) {
		return s.Cancel(ctx, r.SessionID)
	}

	kit.RegisterMCPTool(srv, tool, handle)
}
