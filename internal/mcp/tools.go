package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions exposed over MCP.

var syncRunToolDef = mcp.NewTool("sync_run",
	mcp.WithDescription("Run a full channel sync: fetch every thread, export transcripts and summary scaffolds locally, then create or update one WordPress post per thread. Returns the final report. Fails with SYNC_BUSY if a run is already in progress."),
)

var syncStatusToolDef = mcp.NewTool("sync_status",
	mcp.WithDescription("Report the live or most recently finished sync run: status, current step, current thread, and the final report once complete. Returns idle when no run is tracked."),
)

var mappingListToolDef = mcp.NewTool("mapping_list",
	mcp.WithDescription("List the thread→post mapping table: fingerprint, WordPress post id, title, and last update time for every synced thread."),
)

var mappingRemoveToolDef = mcp.NewTool("mapping_remove",
	mcp.WithDescription("Remove the mapping for a thread fingerprint. The next sync will create a fresh WordPress post for that thread instead of updating the old one."),
	mcp.WithString("fingerprint",
		mcp.Required(),
		mcp.Description("Thread fingerprint (the root message timestamp, e.g. \"1700000000.000100\")"),
	),
)

var promptGetToolDef = mcp.NewTool("prompt_get",
	mcp.WithDescription("Get the per-thread summarization prompt stored alongside a mapping, if one has been set."),
	mcp.WithString("fingerprint",
		mcp.Required(),
		mcp.Description("Thread fingerprint"),
	),
)

var promptSetToolDef = mcp.NewTool("prompt_set",
	mcp.WithDescription("Store a per-thread summarization prompt alongside an existing mapping. Fails with NOT_FOUND if the thread has not been synced yet."),
	mcp.WithString("fingerprint",
		mcp.Required(),
		mcp.Description("Thread fingerprint"),
	),
	mcp.WithString("prompt",
		mcp.Required(),
		mcp.Description("Prompt text to store for the thread"),
	),
)
