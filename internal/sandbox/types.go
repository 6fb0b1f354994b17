// Package sandbox runs shell commands on behalf of the shell tool, streaming
// chunked output back to the caller and enforcing the timeout/interrupt
// semantics the session engine depends on for predictable turn termination.
package sandbox

import (
	"time"

	"github.com/riftlab/turnengine/internal/protocol"
)

// ExecParams describes one shell invocation requested by the model.
type ExecParams struct {
	Command                 []string          `json:"command"`
	Cwd                      string            `json:"cwd"`
	TimeoutMs                *int64            `json:"timeout_ms,omitempty"`
	Env                      map[string]string `json:"env,omitempty"`
	WithEscalatedPermissions bool              `json:"with_escalated_permissions,omitempty"`
	Justification            string            `json:"justification,omitempty"`
	// RequiresTTY runs the command attached to a real pseudo-terminal
	// instead of plain pipes, for programs that refuse to run without one.
	// Only meaningful alongside WithEscalatedPermissions.
	RequiresTTY bool `json:"requires_tty,omitempty"`
}

func (p ExecParams) Timeout() time.Duration {
	if p.TimeoutMs == nil {
		return 0
	}
	return time.Duration(*p.TimeoutMs) * time.Millisecond
}

// SandboxType selects the isolation mechanism used for a single exec.
type SandboxType string

const (
	SandboxNone          SandboxType = "none"
	SandboxSeatbelt      SandboxType = "seatbelt"
	SandboxLinuxSeccomp  SandboxType = "linux-seccomp"
)

// SandboxDecision is the resolved isolation choice for one exec, produced by
// the safety gate before the command runs.
type SandboxDecision struct {
	InitialSandbox         SandboxType
	EscalateOnFailure      bool
	RecordSessionApproval  bool
}

// ExecStreamChunk is one delta of stdout/stderr emitted while a command
// runs. Sequence is a per-call counter derived from read order so the UI
// can reconstruct interleaving.
type ExecStreamChunk struct {
	CallID   string
	Stream   string // "stdout" or "stderr"
	Bytes    []byte
	Sequence int
}

// ExecToolCallOutput is the final, aggregated result of one exec.
type ExecToolCallOutput struct {
	ExitCode         int
	SandboxType      SandboxType
	Stdout           string
	Stderr           string
	AggregatedOutput string // unbounded; every byte the command produced
	Tail             string // rolling last tailBufferCap bytes, for callers that want a bounded preview
	Duration         time.Duration
	TimedOut         bool
}

// IsSandboxDenied reports whether this result looks like the sandbox
// rejected the operation rather than the command failing on its own.
func (o ExecToolCallOutput) IsSandboxDenied() bool {
	return IsLikelySandboxDenied(o.SandboxType, o.ExitCode)
}

// ToFunctionCallOutput renders the exec result as the JSON blob the model
// expects in a function_call_output item's output field.
func (o ExecToolCallOutput) ToFunctionCallOutput(callID string) protocol.ResponseItem {
	success := o.ExitCode == 0
	return protocol.NewFunctionCallOutput(callID, o.outputJSON(), success)
}

func (o ExecToolCallOutput) outputJSON() string {
	return execOutputJSON(o)
}
