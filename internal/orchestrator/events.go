package orchestrator

import (
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/sandbox"
	"github.com/riftlab/turnengine/internal/tools"
)

// EventKind discriminates one item of the high-level UI event stream.
// Every event carries the sub_id (turn id) it belongs to.
type EventKind string

const (
	EventSessionConfigured        EventKind = "session_configured"
	EventUserMessage              EventKind = "user_message"
	EventAgentMessage             EventKind = "agent_message"
	EventAgentMessageDelta        EventKind = "agent_message_delta"
	EventReasoningDelta           EventKind = "reasoning_delta"
	EventReasoningSummaryDelta    EventKind = "reasoning_summary_delta"
	EventExecCommandBegin         EventKind = "exec_command_begin"
	EventExecCommandOutput        EventKind = "exec_command_output_delta"
	EventExecCommandEnd           EventKind = "exec_command_end"
	EventPatchApplyBegin          EventKind = "patch_apply_begin"
	EventPatchApplyEnd            EventKind = "patch_apply_end"
	EventPlanUpdate               EventKind = "plan_update"
	EventMcpToolCallBegin         EventKind = "mcp_tool_call_begin"
	EventMcpToolCallEnd           EventKind = "mcp_tool_call_end"
	EventExecApprovalRequest      EventKind = "exec_approval_request"
	EventPatchApprovalRequest     EventKind = "apply_patch_approval_request"
	EventTokenCount               EventKind = "token_count"
	EventCompacted                EventKind = "compacted"
	EventTurnAborted              EventKind = "turn_aborted"
	EventTaskComplete             EventKind = "task_complete"
)

// Order lets the UI reconstruct interleaving: which request produced an
// event, and where in that response it sat.
type Order struct {
	RequestOrdinal int
	OutputIndex    *int
	SequenceNumber *int
}

// Event is one item of the orchestrator's UI event stream.
type Event struct {
	Kind  EventKind
	SubID string
	Order Order

	Delta      string
	Message    *protocol.ResponseItem
	ExecParams *sandbox.ExecParams
	ExecOutput *sandbox.ExecToolCallOutput
	ExecChunk  *sandbox.ExecStreamChunk
	CallID     string
	ToolName   string
	Success    bool
	Summary    string
	Plan       *tools.PlanUpdateEvent
	Usage      *protocol.TokenUsage
	TokensUsed int
	Reason     string
}

// Sink receives every Event the orchestrator produces. Implementations must
// not block for long: the turn loop calls Sink synchronously.
type Sink func(Event)
