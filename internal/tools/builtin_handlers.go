package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/riftlab/turnengine/internal/diffs"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/safety"
	"github.com/riftlab/turnengine/internal/sandbox"
)

// Approver resolves an AskUser safety decision to a yes/no, typically by
// emitting an ExecApprovalRequest/ApplyPatchApprovalRequest event to the UI
// and waiting for the matching response. A nil Approver treats every
// AskUser decision as denied.
type Approver func(ctx context.Context, kind, detail string) bool

// PlanStep mirrors the update_plan tool's per-step payload.
type PlanStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

// PlanUpdateEvent is emitted whenever update_plan successfully parses its
// arguments; the orchestrator forwards it to the UI as a PlanUpdate event.
type PlanUpdateEvent struct {
	Explanation string     `json:"explanation,omitempty"`
	Plan        []PlanStep `json:"plan"`
}

func shellHandler(exec *sandbox.Executor, gate *safety.Gate, approve Approver, emitChunk func(sandbox.ExecStreamChunk), onBegin func(callID string, params sandbox.ExecParams), onEnd func(callID string, out sandbox.ExecToolCallOutput)) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var params sandbox.ExecParams
		if err := json.Unmarshal(args, &params); err != nil {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: %w", err)
		}
		if len(params.Command) == 0 {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: command must not be empty")
		}

		decision := gate.AssessCommandSafety(params.Command, params.WithEscalatedPermissions)
		switch decision.Kind {
		case safety.DecisionReject:
			return protocol.NewFunctionCallOutput(callID, decision.RejectReason+"; rejected by policy", false), nil
		case safety.DecisionAskUser:
			if approve == nil || !approve(ctx, "exec", fmt.Sprintf("%v", params.Command)) {
				return protocol.NewFunctionCallOutput(callID, "command rejected by user", false), nil
			}
			gate.RecordApproval(params.Command)
			decision = safety.AutoApprove(sandbox.SandboxNone, true)
		}

		if onBegin != nil {
			onBegin(callID, params)
		}

		sd := sandbox.SandboxDecision{
			InitialSandbox:        decision.Sandbox,
			EscalateOnFailure:     gate.ShouldEscalateOnFailure(decision.Sandbox),
			RecordSessionApproval: decision.UserExplicitlyApproved,
		}
		out, err := exec.Run(ctx, callID, params, sd, emitChunk)
		if err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}

		// A sandbox denial may be retried without isolation, but only with
		// the user's say-so.
		if sd.EscalateOnFailure && out.IsSandboxDenied() {
			if approve != nil && approve(ctx, "exec-escalate", fmt.Sprintf("%v (sandbox denied, retry unsandboxed?)", params.Command)) {
				gate.RecordApproval(params.Command)
				out, err = exec.Run(ctx, callID, params, sandbox.SandboxDecision{InitialSandbox: sandbox.SandboxNone}, emitChunk)
				if err != nil {
					return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
				}
			}
		}

		if onEnd != nil {
			onEnd(callID, out)
		}
		return out.ToFunctionCallOutput(callID), nil
	}
}

func applyPatchHandler(gate *safety.Gate, tracker *diffs.TurnDiffTracker, approve Approver, io diffs.FileIO, onBegin func(callID string), onEnd func(callID string, success bool, summary string)) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			Patch string `json:"patch"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: %w", err)
		}

		if onBegin != nil {
			onBegin(callID)
		}

		patch, err := diffs.ParsePatchEnvelope(payload.Patch)
		if err != nil {
			msg := fmt.Sprintf("apply_patch verification failed\n%s", err.Error())
			if onEnd != nil {
				onEnd(callID, false, msg)
			}
			return protocol.NewFunctionCallOutput(callID, msg, false), nil
		}

		decision := gate.AssessPatchSafety(patch)
		switch decision.Kind {
		case safety.DecisionReject:
			msg := decision.RejectReason + "; rejected by policy"
			if onEnd != nil {
				onEnd(callID, false, msg)
			}
			return protocol.NewFunctionCallOutput(callID, msg, false), nil
		case safety.DecisionAskUser:
			if approve == nil || !approve(ctx, "patch", payload.Patch) {
				msg := "patch rejected by user"
				if onEnd != nil {
					onEnd(callID, false, msg)
				}
				return protocol.NewFunctionCallOutput(callID, msg, false), nil
			}
		}

		if tracker != nil {
			if err := tracker.OnPatchBegin(patch, io.Read); err != nil {
				msg := fmt.Sprintf("apply_patch verification failed\n%s", err.Error())
				if onEnd != nil {
					onEnd(callID, false, msg)
				}
				return protocol.NewFunctionCallOutput(callID, msg, false), nil
			}
		}

		result, err := diffs.ApplyPatch(patch, io)
		if err != nil {
			msg := fmt.Sprintf("apply_patch verification failed\n%s", err.Error())
			if onEnd != nil {
				onEnd(callID, false, msg)
			}
			return protocol.NewFunctionCallOutput(callID, msg, false), nil
		}

		summary := result.Summary()
		if onEnd != nil {
			onEnd(callID, true, summary)
		}
		return protocol.NewFunctionCallOutput(callID, summary, true), nil
	}
}

func updatePlanHandler(onUpdate func(PlanUpdateEvent)) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload PlanUpdateEvent
		if err := json.Unmarshal(args, &payload); err != nil || len(payload.Plan) == 0 {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: plan is required")
		}
		for _, step := range payload.Plan {
			switch step.Status {
			case "pending", "in_progress", "completed":
			default:
				return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: invalid step status %q", step.Status)
			}
		}
		if onUpdate != nil {
			onUpdate(payload)
		}
		return protocol.NewFunctionCallOutput(callID, "Plan updated", true), nil
	}
}

func waitHandler() Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		return protocol.NewFunctionCallOutput(callID, "", true), nil
	}
}
