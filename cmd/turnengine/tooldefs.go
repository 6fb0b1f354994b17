package main

import "github.com/riftlab/turnengine/internal/protocol"

// builtinToolDefs describes the tools RegisterBuiltins/RegisterAgentTools/
// RegisterBrowserTools wire against the Registry.
func builtinToolDefs() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "shell",
			Description: "Run a shell command in the sandboxed workspace and stream its output.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command":                     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"cwd":                         map[string]interface{}{"type": "string"},
					"timeout_ms":                  map[string]interface{}{"type": "integer"},
					"with_escalated_permissions":  map[string]interface{}{"type": "boolean"},
					"justification":               map[string]interface{}{"type": "string"},
					"requires_tty":                map[string]interface{}{"type": "boolean", "description": "Run attached to a real pseudo-terminal; only meaningful with with_escalated_permissions."},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        "apply_patch",
			Description: "Apply a patch envelope (*** Begin Patch / Add File / Update File / Delete File / End Patch) to the workspace.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"patch": map[string]interface{}{"type": "string"},
				},
				"required": []string{"patch"},
			},
		},
		{
			Name:        "update_plan",
			Description: "Replace the current step plan shown to the user.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"plan": map[string]interface{}{"type": "array"},
				},
				"required": []string{"plan"},
			},
		},
		{
			Name:        "wait",
			Description: "Wait for a pending background operation without ending the turn.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "agent_run",
			Description: "Launch a sub-agent peer process against the workspace (optionally in an isolated git worktree).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":   map[string]interface{}{"type": "string"},
					"writable": map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        "agent_wait",
			Description: "Block until a launched sub-agent finishes.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"agent_id": map[string]interface{}{"type": "string"}},
				"required":   []string{"agent_id"},
			},
		},
		{
			Name:        "agent_result",
			Description: "Fetch the result of a finished sub-agent.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"agent_id": map[string]interface{}{"type": "string"}},
				"required":   []string{"agent_id"},
			},
		},
		{
			Name:        "agent_list",
			Description: "List every sub-agent launched this session and its state.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "browser_open",
			Description: "Open a URL in the managed browser and return a page id.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
				"required":   []string{"url"},
			},
		},
		{
			Name:        "browser_click",
			Description: "Click a selector on the managed browser page.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"page_id":  map[string]interface{}{"type": "string"},
					"selector": map[string]interface{}{"type": "string"},
				},
				"required": []string{"selector"},
			},
		},
		{
			Name:        "browser_type",
			Description: "Type text into an element on the managed browser page.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"page_id":  map[string]interface{}{"type": "string"},
					"selector": map[string]interface{}{"type": "string"},
					"text":     map[string]interface{}{"type": "string"},
				},
				"required": []string{"selector", "text"},
			},
		},
		{
			Name:        "browser_screenshot",
			Description: "Capture a screenshot of the managed browser page.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"page_id": map[string]interface{}{"type": "string"}},
			},
		},
		{
			Name:        "read_definitions",
			Description: "List the functions, methods, types, and classes defined in a Go or JavaScript source file.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				"required":   []string{"path"},
			},
		},
	}
}
