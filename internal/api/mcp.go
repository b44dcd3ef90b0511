package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/prefs/internal/prefs"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Prefs   *prefs.Preferences
	Version string
}

// NewMCPServer creates an MCP server exposing the preferences of one
// namespace as tools and a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"prefs",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prefs: typed key-value preferences for namespace "+deps.Prefs.Namespace()+"."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("get_preference",
			mcp.WithDescription("Read a stored preference. Returns {key, type, value} as JSON."),
			mcp.WithString("key", mcp.Description("Preference key"), mcp.Required()),
		),
		mcpGetPreference(deps),
	)

	s.AddTool(
		mcp.NewTool("set_preference",
			mcp.WithDescription("Store a preference, replacing any previous value regardless of its type."),
			mcp.WithString("key", mcp.Description("Preference key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value in text form, e.g. true, 42, 1.5 or any string"), mcp.Required()),
			mcp.WithString("type",
				mcp.Description("Value type (default string)"),
				mcp.Enum("bool", "int", "long", "float", "string"),
			),
		),
		mcpSetPreference(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_preference",
			mcp.WithDescription("Remove a preference. Removing an absent key succeeds."),
			mcp.WithString("key", mcp.Description("Preference key"), mcp.Required()),
		),
		mcpRemovePreference(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_preferences",
			mcp.WithDescription("Remove every preference of this namespace."),
			mcp.WithBoolean("confirm", mcp.Description("Must be true"), mcp.Required()),
		),
		mcpClearPreferences(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"prefs://all",
			"All Preferences",
			mcp.WithResourceDescription("Every stored preference of this namespace as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAll(deps),
	)

	return s
}

func mcpGetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		v, err := deps.Prefs.Get(ctx, key)
		if errors.Is(err, prefs.ErrKeyAbsent) {
			return mcpError(fmt.Sprintf("no preference stored for %q", key)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read preference: %v", err)), nil
		}

		e, err := EntryOf(key, v)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode preference: %v", err)), nil
		}
		b, err := json.Marshal(e)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode preference: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		kind, err := prefs.ParseKind(req.GetString("type", string(prefs.KindString)))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		v, err := prefs.ParseValue(kind, value)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid %s value: %v", kind, err)), nil
		}

		if err := deps.Prefs.Save(ctx, key, v); err != nil {
			return mcpError(fmt.Sprintf("failed to set preference: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Set %s = %s (%s)", key, v, kind)), nil
	}
}

func mcpRemovePreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		if err := deps.Prefs.Remove(ctx, key); err != nil {
			return mcpError(fmt.Sprintf("failed to remove preference: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Removed %s", key)), nil
	}
}

func mcpClearPreferences(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !req.GetBool("confirm", false) {
			return mcpError("confirm must be true to clear all preferences"), nil
		}
		if err := deps.Prefs.RemoveAll(ctx); err != nil {
			return mcpError(fmt.Sprintf("failed to clear preferences: %v", err)), nil
		}
		return mcpText("Cleared all preferences"), nil
	}
}

func mcpResourceAll(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		all, err := deps.Prefs.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list preferences: %w", err)
		}

		entries := make(map[string]Entry, len(all))
		for k, v := range all {
			e, err := EntryOf("", v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s: %w", k, err)
			}
			entries[k] = e
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal preferences: %w", err)
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
