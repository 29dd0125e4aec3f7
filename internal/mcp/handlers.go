package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/35services/slack-2-wordpress/internal/errors"
	"github.com/35services/slack-2-wordpress/internal/pipeline"
	"github.com/35services/slack-2-wordpress/internal/state"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	pipeline *pipeline.Pipeline
	tracker  *pipeline.Tracker
	store    *state.Store
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(pipe *pipeline.Pipeline, tracker *pipeline.Tracker, store *state.Store) *Handlers {
	return &Handlers{pipeline: pipe, tracker: tracker, store: store}
}

// Request types for each tool

// MappingRemoveRequest represents the arguments for mapping_remove.
type MappingRemoveRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// PromptGetRequest represents the arguments for prompt_get.
type PromptGetRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// PromptSetRequest represents the arguments for prompt_set.
type PromptSetRequest struct {
	Fingerprint string `json:"fingerprint"`
	Prompt      string `json:"prompt"`
}

// Handler implementations

// HandleSyncRun handles the sync_run tool call. The run executes
// synchronously; the result is the final report.
func (h *Handlers) HandleSyncRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.pipeline.SyncAll(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(report)
}

// HandleSyncStatus handles the sync_status tool call.
func (h *Handlers) HandleSyncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, ok := h.tracker.Current()
	if !ok {
		return successResult(map[string]any{"status": "idle"})
	}
	return successResult(snap)
}

// HandleMappingList handles the mapping_list tool call.
func (h *Handlers) HandleMappingList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := h.store.List()
	return successResult(map[string]any{
		"mappings": entries,
		"count":    len(entries),
	})
}

// HandleMappingRemove handles the mapping_remove tool call.
func (h *Handlers) HandleMappingRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MappingRemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Fingerprint == "" {
		return errorResult(errors.NewInvalidRequest("fingerprint is required")), nil
	}

	if err := h.store.Remove(input.Fingerprint); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"removed":     true,
		"fingerprint": input.Fingerprint,
	})
}

// HandlePromptGet handles the prompt_get tool call.
func (h *Handlers) HandlePromptGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Fingerprint == "" {
		return errorResult(errors.NewInvalidRequest("fingerprint is required")), nil
	}

	if _, ok := h.store.Get(input.Fingerprint); !ok {
		return errorResult(errors.NewNotFound(input.Fingerprint)), nil
	}

	prompt, set := h.store.GetPrompt(input.Fingerprint)
	return successResult(map[string]any{
		"fingerprint": input.Fingerprint,
		"prompt":      prompt,
		"set":         set,
	})
}

// HandlePromptSet handles the prompt_set tool call.
func (h *Handlers) HandlePromptSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Fingerprint == "" {
		return errorResult(errors.NewInvalidRequest("fingerprint is required")), nil
	}
	if input.Prompt == "" {
		return errorResult(errors.NewInvalidRequest("prompt is required")), nil
	}

	if err := h.store.SetPrompt(input.Fingerprint, input.Prompt); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"stored":      true,
		"fingerprint": input.Fingerprint,
	})
}

// errorResult creates an MCP error result with a structured payload.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if syncErr, ok := err.(*errors.SyncError); ok {
		errorObj := map[string]any{
			"code":    syncErr.Code,
			"message": syncErr.Message,
			"status":  syncErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or upstream API responses
		if syncErr.Code != errors.ErrInternal && syncErr.Details != nil {
			errorObj["details"] = syncErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
