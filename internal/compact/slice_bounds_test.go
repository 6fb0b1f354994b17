package compact

import (
	"strings"
	"testing"

	"github.com/riftlab/turnengine/internal/protocol"
)

func msg(role, text string) protocol.ResponseItem {
	return protocol.NewMessage(role, protocol.TextItem(text))
}

func call(callID, command string) protocol.ResponseItem {
	return protocol.ResponseItem{Type: protocol.ItemFunctionCall, CallID: callID, Name: "shell", Command: []string{command}}
}

func TestComputeSliceBoundsNoUserMessage(t *testing.T) {
	history := []protocol.ResponseItem{msg("assistant", "hi")}
	if _, ok := ComputeSliceBounds(history); ok {
		t.Fatal("expected no bounds without a user message")
	}
}

func TestComputeSliceBoundsTooShort(t *testing.T) {
	history := []protocol.ResponseItem{msg("user", "do the thing"), msg("assistant", "ok")}
	if _, ok := ComputeSliceBounds(history); ok {
		t.Fatal("expected no bounds when fewer than 3 items follow the goal")
	}
}

// TestComputeSliceBoundsExpandsToTurnBoundary builds a history where the
// token midpoint lands inside a turn, and checks the cut is pushed forward
// to the next user message rather than splitting a function_call from its
// output.
func TestComputeSliceBoundsExpandsToTurnBoundary(t *testing.T) {
	big := strings.Repeat("x", 400) // 100 tokens at 4 bytes/token
	history := []protocol.ResponseItem{
		msg("user", "goal"),                  // 0: goalIdx
		msg("assistant", big),                // 1
		call("c1", "echo one"),               // 2
		protocol.NewFunctionCallOutput("c1", "one", true), // 3
		msg("user", "next turn"),             // 4: turn boundary
		msg("assistant", big),                // 5
		msg("user", "most recent"),           // 6
	}

	bounds, ok := ComputeSliceBounds(history)
	if !ok {
		t.Fatal("expected bounds")
	}
	if bounds.Start != 1 {
		t.Errorf("Start = %d, want 1", bounds.Start)
	}
	// The midpoint lands exactly on the index-4 user message; a cut
	// anywhere inside indices 2-3 would split the function_call from its
	// function_call_output, so the expanded end must land on index 4.
	if bounds.End != 4 {
		t.Errorf("End = %d, want 4 (next turn boundary)", bounds.End)
	}
	if !history[bounds.End].IsUserMessage() {
		t.Error("End must land on a user message")
	}
}

func TestComputeSliceBoundsNoTrailingUserMessage(t *testing.T) {
	// With no user message after the midpoint, the end expands all the way
	// to the end of history — nothing is left stranded, so the whole span
	// after the goal is eligible.
	history := []protocol.ResponseItem{
		msg("user", "goal"),
		msg("assistant", "a"),
		call("c1", "echo one"),
		protocol.NewFunctionCallOutput("c1", "one", true),
	}
	bounds, ok := ComputeSliceBounds(history)
	if !ok {
		t.Fatal("expected bounds")
	}
	if bounds.Start != 1 || bounds.End != len(history) {
		t.Errorf("bounds = %+v, want {1, %d}", bounds, len(history))
	}
}

func TestComputeSliceBoundsSixItemScenario(t *testing.T) {
	history := []protocol.ResponseItem{
		msg("system", "be helpful"),
		msg("user", "Goal"),
		msg("assistant", "Step 1"),
		msg("user", "Step 2"),
		msg("assistant", "Step 2 done"),
		msg("user", "Step 3"),
	}
	bounds, ok := ComputeSliceBounds(history)
	if !ok {
		t.Fatal("expected bounds")
	}
	if bounds.Start != 2 || bounds.End != 5 {
		t.Errorf("bounds = (%d, %d), want (2, 5)", bounds.Start, bounds.End)
	}
}

func TestApplyCompactionPreservesGoal(t *testing.T) {
	history := []protocol.ResponseItem{
		msg("system", "be helpful"),
		msg("user", "Goal"),
		msg("assistant", "Step 1"),
		msg("user", "Step 2"),
		msg("assistant", "Step 2 done"),
		msg("user", "Step 3"),
	}
	bounds, ok := ComputeSliceBounds(history)
	if !ok {
		t.Fatal("expected bounds")
	}
	out := ApplyCompaction(history, bounds, "", "summary")
	if !out[1].IsUserMessage() || out[1].Text() != "Goal" {
		t.Errorf("goal not preserved at its index: %+v", out[1])
	}
}
