package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/riftlab/turnengine/internal/diffs"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/safety"
	"github.com/riftlab/turnengine/internal/sandbox"
)

// CallState tracks one in-flight tool call through its lifecycle.
type CallState string

const (
	CallPending   CallState = "pending"
	CallRunning   CallState = "running"
	CallCompleted CallState = "completed"
	CallFailed    CallState = "failed"
	CallAborted   CallState = "aborted"
)

// Handler executes one tool call and returns the ResponseItem to append to
// history as its function_call_output.
type Handler func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error)

// Registry is a name-keyed tool dispatcher: each tool registers its own
// handler, so adding a tool never touches this file.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	states   map[string]CallState
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]Handler{},
		states:   map[string]CallState{},
	}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch runs the named tool's registered handler.
func (r *Registry) Dispatch(ctx context.Context, name, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
	r.setState(callID, CallRunning)

	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		r.setState(callID, CallFailed)
		return protocol.NewFunctionCallOutput(callID, fmt.Sprintf("unknown tool: %s", name), false), nil
	}

	item, err := handler(ctx, callID, args)
	if err != nil {
		if ctx.Err() != nil {
			r.setState(callID, CallAborted)
		} else {
			r.setState(callID, CallFailed)
		}
		return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
	}
	r.setState(callID, CallCompleted)
	return item, nil
}

func (r *Registry) setState(callID string, s CallState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[callID] = s
}

func (r *Registry) StateOf(callID string) (CallState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[callID]
	return s, ok
}

// BuiltinWiring bundles every collaborator RegisterBuiltins needs to wire
// the built-in tool set against concrete implementations. Exec, Gate and
// FileIO are required. The callbacks, Approve and Tracker may be left nil:
// a nil callback is skipped, a nil Tracker skips diff tracking, and a nil
// Approve denies every AskUser decision.
type BuiltinWiring struct {
	Exec     *sandbox.Executor
	Gate     *safety.Gate
	Tracker  *diffs.TurnDiffTracker
	FileIO   diffs.FileIO
	Approve  Approver
	OnChunk  func(sandbox.ExecStreamChunk)
	OnExecBegin func(callID string, params sandbox.ExecParams)
	OnExecEnd   func(callID string, out sandbox.ExecToolCallOutput)
	OnPatchBegin func(callID string)
	OnPatchEnd   func(callID string, success bool, summary string)
	OnPlanUpdate func(PlanUpdateEvent)
}

// RegisterBuiltins wires the shell, apply_patch, update_plan, and wait
// tools against concrete sandbox/safety/diffs collaborators. Browser and
// agent_run tool families are wired separately (RegisterBrowserTools,
// RegisterAgentTools) since they depend on optional collaborators that a
// minimal session may not configure.
func RegisterBuiltins(r *Registry, w BuiltinWiring) {
	r.Register("shell", shellHandler(w.Exec, w.Gate, w.Approve, w.OnChunk, w.OnExecBegin, w.OnExecEnd))
	r.Register("apply_patch", applyPatchHandler(w.Gate, w.Tracker, w.Approve, w.FileIO, w.OnPatchBegin, w.OnPatchEnd))
	r.Register("update_plan", updatePlanHandler(w.OnPlanUpdate))
	r.Register("wait", waitHandler())
}
