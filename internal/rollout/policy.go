package rollout

import "github.com/riftlab/turnengine/internal/protocol"

// ShouldPersistResponseItem filters which ResponseItems are ever eligible
// to enter conversation history at all. Ephemeral reasoning deltas the UI
// chose not to materialize into a final Reasoning item never reach here;
// this predicate instead guards items that entered history but shouldn't
// be shown back to the model on the next turn load, such as an empty
// assistant message produced by a cancelled turn.
func ShouldPersistResponseItem(item protocol.ResponseItem) bool {
	if item.Type == protocol.ItemMessage && item.Role == "assistant" && item.Text() == "" {
		return false
	}
	return true
}

// ShouldPersistRolloutItem is a second, narrower filter applied only at
// rollout-write time: it drops items that belong in in-memory history for
// the current process but must not survive a restart — a Compacted marker
// for a checkpoint whose summary is still being composed is represented as
// an in-memory-only placeholder until BuildCheckpointSummary finishes, so
// it never reaches this predicate as a real ResponseItem in the first
// place. For ordinary conversation items, this always returns true.
func ShouldPersistRolloutItem(item protocol.ResponseItem) bool {
	return true
}
