// Package mcpserver exposes the workflow state machine as MCP tools over
// stdio, so an external AI agent can drive sessions through tool calls.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/FilipeJesus/lanes-sub004/pkg/session"
)

// Gateway dispatches MCP tool calls onto the session store. It owns the
// boundary responsibilities the state machine refuses: argument
// validation, session-exists preconditions and persistence after each
// mutation.
type Gateway struct {
	Store *session.Store
}

// NewServer creates an MCP server with the workflow tools registered.
func NewServer(version string, gw *Gateway) *server.MCPServer {
	s := server.NewMCPServer(
		"lanes",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("workflow_start",
			mcp.WithDescription("Start a workflow session (or return the status of an existing one). Idempotent per session_id."),
			mcp.WithString("workflow_path", mcp.Required(), mcp.Description("Path to the workflow YAML file")),
			mcp.WithString("session_id", mcp.Description("Session to reuse; omit to create a new one")),
			mcp.WithString("summary", mcp.Description("Short description of the overarching user request")),
		),
		gw.HandleStart,
	)

	s.AddTool(
		mcp.NewTool("workflow_status",
			mcp.WithDescription("Get the current execution directive: cursor position, target agent, instructions, pending context action, progress and artefacts"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to query")),
		),
		gw.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("workflow_advance",
			mcp.WithDescription("Record the output for the current position and move the cursor to the next unit of work"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to advance")),
			mcp.WithString("output", mcp.Description("Free-text output of the completed unit of work")),
		),
		gw.HandleAdvance,
	)

	s.AddTool(
		mcp.NewTool("workflow_set_tasks",
			mcp.WithDescription("Supply the task list for a loop step (replaces any previous list)"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to update")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("Loop step the tasks belong to")),
			mcp.WithArray("tasks", mcp.Required(), mcp.Description("Task objects: {id?, title, status?}")),
		),
		gw.HandleSetTasks,
	)

	s.AddTool(
		mcp.NewTool("workflow_register_artefacts",
			mcp.WithDescription("Register produced file paths as session artefacts; results are partitioned per item into registered/duplicates/invalid"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to update")),
			mcp.WithArray("paths", mcp.Required(), mcp.Description("Absolute or workspace-relative file paths")),
		),
		gw.HandleRegisterArtefacts,
	)

	s.AddTool(
		mcp.NewTool("workflow_fail",
			mcp.WithDescription("Mark the session failed after an unrecoverable condition. Terminal: further advances are no-ops."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to fail")),
			mcp.WithString("reason", mcp.Description("What went unrecoverably wrong")),
		),
		gw.HandleFail,
	)

	s.AddTool(
		mcp.NewTool("workflow_mark_context_done",
			mcp.WithDescription("Mark the pending context action as executed so it is not returned again for this position"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to update")),
		),
		gw.HandleMarkContextDone,
	)

	return s
}
