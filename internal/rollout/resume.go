package rollout

import (
	"bufio"
	"encoding/json"
	"log"
	"os"

	"github.com/riftlab/turnengine/internal/compact"
	"github.com/riftlab/turnengine/internal/protocol"
)

// InitialHistoryKind discriminates whether a session starts fresh or
// resumes from an on-disk rollout.
type InitialHistoryKind string

const (
	HistoryNew     InitialHistoryKind = "new"
	HistoryResumed InitialHistoryKind = "resumed"
)

// InitialHistory is what a new orchestrator session is seeded with.
type InitialHistory struct {
	Kind  InitialHistoryKind
	Meta  *SessionMeta
	Items []protocol.ResponseItem
}

// GetRolloutHistory reads path and reconstructs the ResponseItem history a
// resumed session should replay to the model. State snapshots are skipped
// entirely (UI-only, never conversation turns). A Compacted line replays
// the same truncation the live session performed: everything after the
// pinned goal message collapses into a checkpoint message carrying the
// recorded summary, and subsequent items append after it — so the resumed
// view matches what the model saw mid-session. Unknown record types are
// skipped with a log warning for forward compatibility.
func GetRolloutHistory(path string) (InitialHistory, error) {
	f, err := os.Open(path)
	if err != nil {
		return InitialHistory{}, err
	}
	defer f.Close()

	hist := InitialHistory{Kind: HistoryResumed}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var line RolloutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			log.Printf("rollout: skipping unreadable line in %s: %v", path, err)
			continue
		}
		switch line.Type {
		case RecordSessionMeta:
			hist.Meta = line.Meta
		case RecordState, RecordEvent, RecordTurnContext:
			// UI-only records; they never re-enter conversation history.
			continue
		case RecordResponseItem:
			if line.Item != nil {
				hist.Items = append(hist.Items, *line.Item)
			}
		case RecordCompacted:
			if line.Compacted != nil {
				hist.Items = collapseForCheckpoint(hist.Items, line.Compacted.SummaryText)
			}
		default:
			log.Printf("rollout: skipping unknown record type %q in %s", line.Type, path)
		}
	}
	return hist, scanner.Err()
}

// collapseForCheckpoint mirrors the in-memory compaction a Compacted line
// records: keep everything up to and including the first user message (the
// goal), then a single checkpoint message carrying the summary.
func collapseForCheckpoint(items []protocol.ResponseItem, summary string) []protocol.ResponseItem {
	goalIdx := -1
	for i, item := range items {
		if item.IsUserMessage() {
			goalIdx = i
			break
		}
	}
	if goalIdx == -1 {
		return append(items, compact.MakeCheckpointMessage(summary))
	}
	out := make([]protocol.ResponseItem, 0, goalIdx+2)
	out = append(out, items[:goalIdx+1]...)
	out = append(out, compact.MakeCheckpointMessage(summary))
	return out
}
