package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/emconsole/internal/board"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Board   Board
	History History // optional; past_emergencies returns an error without it
}

// NewMCPServer creates an MCP server exposing the live board.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"emconsole",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("emconsole: live view of in-progress emergencies and the operator's focused record."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_emergencies",
			mcp.WithDescription("List active emergencies, most recently updated first."),
		),
		mcpListEmergencies(deps),
	)

	s.AddTool(
		mcp.NewTool("get_selection",
			mcp.WithDescription("Return the focused emergency, or null when nothing is selected."),
		),
		mcpGetSelection(deps),
	)

	s.AddTool(
		mcp.NewTool("select_emergency",
			mcp.WithDescription("Focus an active emergency by id."),
			mcp.WithString("id", mcp.Description("Emergency id (callSid)"), mcp.Required()),
		),
		mcpSelectEmergency(deps),
	)

	s.AddTool(
		mcp.NewTool("refresh_emergencies",
			mcp.WithDescription("Request an immediate snapshot fetch from the backend."),
		),
		mcpRefresh(deps),
	)

	s.AddTool(
		mcp.NewTool("past_emergencies",
			mcp.WithDescription("List emergencies that have left the board, most recently removed first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpPastEmergencies(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"board://active",
			"Active Emergencies",
			mcp.WithResourceDescription("Active emergencies in display order as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceActive(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"board://selection",
			"Selected Emergency",
			mcp.WithResourceDescription("The focused emergency as JSON, or null"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSelection(deps),
	)

	return s
}

func activeViews(b Board) []EmergencyView {
	records := b.Records()
	selected := b.Selected()
	views := make([]EmergencyView, len(records))
	for i, rec := range records {
		views[i] = newEmergencyView(rec, selected)
	}
	return views
}

// selectedView returns nil when nothing is selected.
func selectedView(b Board) *EmergencyView {
	id := b.Selected()
	if id == "" {
		return nil
	}
	rec, ok := b.Get(id)
	if !ok {
		return nil
	}
	v := newEmergencyView(rec, id)
	return &v
}

func mcpListEmergencies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(activeViews(deps.Board))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal emergencies: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSelection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(selectedView(deps.Board))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal selection: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSelectEmergency(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || id == "" {
			return mcpError("id is required"), nil
		}
		if err := deps.Board.Select(id); err != nil {
			if errors.Is(err, board.ErrUnknownRecord) {
				return mcpError(fmt.Sprintf("emergency %s is not active", id)), nil
			}
			return mcpError(fmt.Sprintf("failed to select: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Selected %s", id)), nil
	}
}

func mcpRefresh(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Board.Refresh()
		return mcpText("Refresh requested"), nil
	}
}

func mcpPastEmergencies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.History == nil {
			return mcpError("history not available: no data directory configured"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		past, err := deps.History.ListPastEmergencies(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list history: %v", err)), nil
		}

		views := make([]PastView, len(past))
		for i, p := range past {
			views[i] = newPastView(p)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceActive(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(activeViews(deps.Board))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal emergencies: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceSelection(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(selectedView(deps.Board))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal selection: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
