package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/tools"
)

// mcpServerCmd exposes the tool registry over MCP on stdio, so an external
// MCP-speaking client can drive the same shell/apply_patch/update_plan/
// agent_run/browser_* tool set the session engine dispatches internally.
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve the built-in tool set over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		return runMCPServer(cmd.Context(), eng)
	},
}

func runMCPServer(ctx context.Context, eng *engine) error {
	mcpServer := server.NewMCPServer(
		"turnengine",
		version,
		server.WithToolCapabilities(true),
	)

	registerShellTool(mcpServer, eng)
	registerDispatchTool(mcpServer, eng, "apply_patch", "Apply a patch envelope to the workspace.",
		mcp.WithString("patch", mcp.Required(), mcp.Description("*** Begin Patch ... *** End Patch envelope text")),
	)
	registerUpdatePlanTool(mcpServer, eng)
	registerDispatchTool(mcpServer, eng, "wait", "Wait for a pending background operation.")
	registerDispatchTool(mcpServer, eng, "agent_run", "Launch a sub-agent peer process.",
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt for the sub-agent")),
		mcp.WithBoolean("writable", mcp.Description("Run the sub-agent in an isolated git worktree with write access")),
	)
	registerDispatchTool(mcpServer, eng, "agent_wait", "Block until a launched sub-agent finishes.",
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id returned by agent_run")),
	)
	registerDispatchTool(mcpServer, eng, "agent_result", "Fetch a finished sub-agent's result.",
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id returned by agent_run")),
	)
	registerDispatchTool(mcpServer, eng, "agent_list", "List every sub-agent launched this session.")
	registerDispatchTool(mcpServer, eng, "browser_open", "Open a URL in the managed browser.",
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to navigate to")),
	)
	registerDispatchTool(mcpServer, eng, "browser_click", "Click a selector on the managed browser page.",
		mcp.WithString("page_id", mcp.Description("Page id returned by browser_open")),
		mcp.WithString("selector", mcp.Required(), mcp.Description("CSS selector to click")),
	)
	registerDispatchTool(mcpServer, eng, "browser_type", "Type text into an element on the managed browser page.",
		mcp.WithString("page_id", mcp.Description("Page id returned by browser_open")),
		mcp.WithString("selector", mcp.Required(), mcp.Description("CSS selector of the element to type into")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to type")),
	)
	registerDispatchTool(mcpServer, eng, "browser_screenshot", "Capture a screenshot of the managed browser page.",
		mcp.WithString("page_id", mcp.Description("Page id returned by browser_open")),
	)
	registerDispatchTool(mcpServer, eng, "read_definitions", "List the definitions in a Go or JavaScript source file.",
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the source file to parse")),
	)

	return server.ServeStdio(mcpServer)
}

// registerShellTool accepts the command as one string for MCP ergonomics
// and expands it into the /bin/sh -c vector the shell handler expects.
func registerShellTool(mcpServer *server.MCPServer, eng *engine) {
	tool := mcp.NewTool("shell",
		mcp.WithDescription("Run a shell command in the sandboxed workspace."),
		mcp.WithString("command", mcp.Required(), mcp.Description("Shell command line, run via /bin/sh -c")),
		mcp.WithString("cwd", mcp.Description("Working directory, defaults to the session cwd")),
		mcp.WithNumber("timeout_ms", mcp.Description("Timeout in milliseconds")),
	)
	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		cmdLine, _ := args["command"].(string)
		if cmdLine == "" {
			return mcp.NewToolResultError("command is required"), nil
		}

		payload := map[string]any{"command": []string{"/bin/sh", "-c", cmdLine}}
		if cwd, ok := args["cwd"].(string); ok && cwd != "" {
			payload["cwd"] = cwd
		}
		if timeout, ok := args["timeout_ms"].(float64); ok && timeout > 0 {
			payload["timeout_ms"] = int64(timeout)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("marshal args: %v", err)), nil
		}

		item, err := eng.registry.Dispatch(ctx, "shell", uuid.NewString(), raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if item.Success != nil && !*item.Success {
			return mcp.NewToolResultError(item.Output), nil
		}
		return mcp.NewToolResultText(item.Output), nil
	})
}

// registerUpdatePlanTool handles update_plan specially: its "plan" field is
// an array of {step,status} objects, which the mcp.With* string/number/
// boolean builders can't describe directly, so it's accepted as a
// JSON-encoded string and re-expanded before dispatch.
func registerUpdatePlanTool(mcpServer *server.MCPServer, eng *engine) {
	tool := mcp.NewTool("update_plan",
		mcp.WithDescription("Replace the current step plan."),
		mcp.WithString("plan", mcp.Required(), mcp.Description(`JSON array of {"step":"...","status":"pending|in_progress|completed"}`)),
		mcp.WithString("explanation", mcp.Description("Why the plan changed")),
	)
	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		planJSON, _ := args["plan"].(string)

		var plan []tools.PlanStep
		if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid plan JSON: %v", err)), nil
		}

		payload := tools.PlanUpdateEvent{Plan: plan}
		if exp, ok := args["explanation"].(string); ok {
			payload.Explanation = exp
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("marshal plan: %v", err)), nil
		}

		item, err := eng.registry.Dispatch(ctx, "update_plan", uuid.NewString(), raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if item.Success != nil && !*item.Success {
			return mcp.NewToolResultError(item.Output), nil
		}
		return mcp.NewToolResultText(item.Output), nil
	})
}

// registerDispatchTool wires one MCP tool to eng.registry.Dispatch, so the
// MCP-facing surface and the in-process orchestrator share one tool
// implementation rather than diverging.
func registerDispatchTool(mcpServer *server.MCPServer, eng *engine, name, description string, opts ...mcp.ToolOption) {
	tool := mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
	mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("marshal args: %v", err)), nil
		}

		item, err := eng.registry.Dispatch(ctx, name, uuid.NewString(), raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if item.Success != nil && !*item.Success {
			return mcp.NewToolResultError(item.Output), nil
		}
		return mcp.NewToolResultText(item.Output), nil
	})
}
