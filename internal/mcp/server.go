package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/35services/slack-2-wordpress/internal/config"
	"github.com/35services/slack-2-wordpress/internal/pipeline"
	"github.com/35services/slack-2-wordpress/internal/state"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"sync_run": {
		def:     syncRunToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSyncRun },
	},
	"sync_status": {
		def:     syncStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSyncStatus },
	},
	"mapping_list": {
		def:     mappingListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMappingList },
	},
	"mapping_remove": {
		def:     mappingRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMappingRemove },
	},
	"prompt_get": {
		def:     promptGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptGet },
	},
	"prompt_set": {
		def:     promptSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptSet },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
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

// NewServer creates a new MCP server with sync tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(pipe *pipeline.Pipeline, tracker *pipeline.Tracker, store *state.Store, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"slack-2-wordpress",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(pipe, tracker, store)

	disabled := make(map[string]bool)
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

// Run starts the MCP server using stdio transport.
func Run(pipe *pipeline.Pipeline, tracker *pipeline.Tracker, store *state.Store, cfg *config.Config, version string) error {
	s := NewServer(pipe, tracker, store, cfg, version)
	return server.ServeStdio(s)
}
