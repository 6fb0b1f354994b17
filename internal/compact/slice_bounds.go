package compact

import "github.com/riftlab/turnengine/internal/protocol"

// SliceBounds is a half-open [Start, End) span of history eligible to be
// folded into a single checkpoint summary.
type SliceBounds struct {
	Start int
	End   int
}

// ComputeSliceBounds decides which span of history to compact. The first
// user message ("the goal") at index g is always pinned: compaction starts
// no earlier than g+1, and the goal message itself is never folded away.
//
// The span after the goal is split roughly in half by cumulative token
// count — not by item count — and the cut point is then pushed forward to
// the next user message so a compaction pass never splits a turn (leaving
// a function_call stranded without its function_call_output). Everything
// at or after that turn boundary is left untouched; only the older half is
// folded into a checkpoint summary.
func ComputeSliceBounds(history []protocol.ResponseItem) (SliceBounds, bool) {
	goalIdx := -1
	for i, item := range history {
		if item.IsUserMessage() {
			goalIdx = i
			break
		}
	}
	if goalIdx == -1 || len(history)-(goalIdx+1) < 3 {
		return SliceBounds{}, false
	}

	start := goalIdx + 1
	afterGoal := history[start:]
	total := EstimateHistoryTokens(afterGoal)
	target := (total + 1) / 2 // ceil(total/2)

	midpoint := start
	cum := 0
	for i, item := range afterGoal {
		cum += EstimateItemTokens(item)
		midpoint = start + i
		if cum >= target {
			break
		}
	}

	end := AdvanceToTurnBoundary(history, midpoint)
	if end <= start {
		return SliceBounds{}, false
	}
	return SliceBounds{Start: start, End: end}, true
}

// AdvanceToTurnBoundary rounds idx forward to the next index that starts a
// fresh user turn, used when an exec or compaction handler needs to resume
// exactly on a turn boundary rather than mid-turn.
func AdvanceToTurnBoundary(history []protocol.ResponseItem, idx int) int {
	for i := idx; i < len(history); i++ {
		if history[i].IsUserMessage() {
			return i
		}
	}
	return len(history)
}
