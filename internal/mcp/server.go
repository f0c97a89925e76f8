package mcp

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/ghostwrite/internal/config"
	"github.com/hpungsan/ghostwrite/internal/router"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"get_status": {
		def:     getStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetStatus },
	},
	"check_grammar": {
		def:     checkGrammarToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCheckGrammar },
	},
	"humanize_text": {
		def:     humanizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHumanize },
	},
	"rewrite_text": {
		def:     rewriteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRewrite },
	},
	"save_api_key": {
		def:     saveAPIKeyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSaveAPIKey },
	},
	"recheck_api": {
		def:     recheckToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecheck },
	},
	"open_upgrade": {
		def:     openUpgradeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOpenUpgrade },
	},
}

// AllToolNames returns every valid tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with GhostWrite tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(caps router.Capabilities, cfg *config.Config, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"ghostwrite",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(caps, cfg, logger)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves s over stdio.
func Run(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
