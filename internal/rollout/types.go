// Package rollout persists every conversation turn to an append-only JSONL
// file (a "rollout"), maintains a per-working-directory index for fast
// conversation listing, and reconstructs history on resume.
package rollout

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/riftlab/turnengine/internal/git"
	"github.com/riftlab/turnengine/internal/protocol"
)

// timestampLayout is RFC-3339 UTC with millisecond precision, the format
// every rollout and index line carries.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// SessionMeta is always the first line of a rollout file.
type SessionMeta struct {
	ID           protocol.ConversationId `json:"id"`
	Timestamp    time.Time               `json:"timestamp"`
	Cwd          string                  `json:"cwd"`
	Originator   string                  `json:"originator"`
	CLIVersion   string                  `json:"cli_version"`
	Instructions string                  `json:"instructions,omitempty"`
	Source       string                  `json:"source,omitempty"`
	Model        string                  `json:"model,omitempty"`
}

// RecordType discriminates a RolloutLine's payload.
type RecordType string

const (
	RecordSessionMeta  RecordType = "session_meta"
	RecordResponseItem RecordType = "response_item"
	RecordEvent        RecordType = "event"
	RecordCompacted    RecordType = "compacted"
	RecordTurnContext  RecordType = "turn_context"
	RecordState        RecordType = "state"
)

// RolloutLine is one line of a rollout JSONL file. On the wire it is
// {"timestamp": ..., "item": {"type": ..., "payload": ..., "git"?: ...}};
// in memory the payload variants live as typed pointers, exactly one
// non-nil, selected by Type. Unknown types survive decoding with their
// Type preserved and every payload pointer nil so readers can skip them.
type RolloutLine struct {
	Timestamp time.Time
	Type      RecordType
	Meta      *SessionMeta
	Git       *git.Info // only alongside Meta, when captured
	Item      *protocol.ResponseItem
	Compacted *Compacted
	State     *StateSnapshot
}

type wireItem struct {
	Type    RecordType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Git     *git.Info       `json:"git,omitempty"`
}

type wireLine struct {
	Timestamp string   `json:"timestamp"`
	Item      wireItem `json:"item"`
}

func (l RolloutLine) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch l.Type {
	case RecordSessionMeta:
		payload = l.Meta
	case RecordResponseItem:
		payload = l.Item
	case RecordCompacted:
		payload = l.Compacted
	case RecordState:
		payload = l.State
	default:
		payload = l.Item
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireLine{
		Timestamp: formatTimestamp(l.Timestamp),
		Item:      wireItem{Type: l.Type, Payload: raw, Git: l.Git},
	})
}

func (l *RolloutLine) UnmarshalJSON(data []byte) error {
	var w wireLine
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("bad rollout timestamp %q: %w", w.Timestamp, err)
	}
	*l = RolloutLine{Timestamp: ts, Type: w.Item.Type, Git: w.Item.Git}
	switch w.Item.Type {
	case RecordSessionMeta:
		l.Meta = &SessionMeta{}
		return json.Unmarshal(w.Item.Payload, l.Meta)
	case RecordResponseItem:
		l.Item = &protocol.ResponseItem{}
		return json.Unmarshal(w.Item.Payload, l.Item)
	case RecordCompacted:
		l.Compacted = &Compacted{}
		return json.Unmarshal(w.Item.Payload, l.Compacted)
	case RecordState:
		l.State = &StateSnapshot{}
		return json.Unmarshal(w.Item.Payload, l.State)
	}
	// Unknown record types keep their Type for the caller to log and skip.
	return nil
}

// Compacted marks the point a checkpoint summary replaced a span of history.
type Compacted struct {
	SummaryText string `json:"summary_text"`
}

// StateSnapshot is a monotonic full-replace UI state blob; readers take
// only the last one seen and it is skipped entirely when reconstructing
// conversation history (it does not represent a conversation turn).
type StateSnapshot struct {
	Payload json.RawMessage `json:"payload"`
}

// Cursor pages through the conversation listing: everything strictly older
// than (Timestamp, ID) in the (timestamp desc, id desc) ordering.
type Cursor struct {
	Timestamp time.Time               `json:"timestamp"`
	ID        protocol.ConversationId `json:"id"`
}

// ConversationSummary is one row of a conversation listing.
type ConversationSummary struct {
	ID        protocol.ConversationId `json:"id"`
	Path      string                  `json:"path"`
	Timestamp time.Time               `json:"timestamp"`
	Snippet   string                  `json:"snippet"`
	Cwd       string                  `json:"cwd"`
	Source    string                  `json:"source,omitempty"`
}

// MaxSnippetLen bounds the truncated preview text kept in the directory
// index and conversation listing, in display characters.
const MaxSnippetLen = 120

// truncateSnippet flattens s to a single display line: newlines become
// spaces, and anything over MaxSnippetLen characters is cut with a
// trailing ellipsis.
func truncateSnippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= MaxSnippetLen {
		return s
	}
	return string(r[:MaxSnippetLen]) + "…"
}
