package compact

import (
	"fmt"
	"strings"

	"github.com/riftlab/turnengine/internal/protocol"
)

// MaxTranscriptBytes bounds the flattened transcript text handed to the
// summarization prompt.
const MaxTranscriptBytes = 32_000

// MaxCommandsInSummary caps how many shell commands the deterministic
// fallback summary lists; repeated commands are not merged.
const MaxCommandsInSummary = 5

// MaxActionLines caps how many role-prefixed message snippets the
// deterministic fallback summary includes.
const MaxActionLines = 5

// CheckpointPrefix marks a synthetic history message as a checkpoint
// envelope rather than a real user utterance.
const CheckpointPrefix = "[CHECKPOINT SUMMARY]\n\n"

// Summarizer produces a checkpoint summary from a span of history by
// calling the model, when one is available; its absence (nil) falls back
// to DeterministicSummary.
type Summarizer func(history []protocol.ResponseItem) (string, error)

// BuildCheckpointSummary renders the given slice of history, together with
// the previous checkpoint (if any), into the text of a new checkpoint
// message. It tries summarize first if non-nil, falling back to the
// deterministic format on any error so compaction never blocks on a flaky
// model call.
func BuildCheckpointSummary(history []protocol.ResponseItem, bounds SliceBounds, prevSummary string, summarize Summarizer) string {
	span := history[bounds.Start:bounds.End]
	if summarize != nil {
		if text, err := summarize(span); err == nil && text != "" {
			return text
		}
	}
	return DeterministicSummary(span, prevSummary)
}

// actionSnippetLen bounds a single role-prefixed action line in the
// deterministic summary.
const actionSnippetLen = 160

// DeterministicSummary is the non-LLM fallback, used whenever no
// summarizer model is configured or the model call fails. Its sections are
// fixed and conditionally present, joined by blank lines, in this order:
// the carried-forward previous checkpoint, the exchange/tool-event counts,
// up to MaxCommandsInSummary shell commands joined by " | ", and up to
// MaxActionLines role-prefixed message snippets.
func DeterministicSummary(span []protocol.ResponseItem, prevSummary string) string {
	exchanges := 0
	toolEvents := 0
	var commands []string
	var actionLines []string

	for _, item := range span {
		switch item.Type {
		case protocol.ItemMessage:
			exchanges++
			if len(actionLines) < MaxActionLines {
				actionLines = append(actionLines, fmt.Sprintf("%s: %s", item.Role, snippet(item.Text())))
			}
		case protocol.ItemFunctionCall, protocol.ItemLocalShellCall:
			toolEvents++
			if len(item.Command) > 0 && len(commands) < MaxCommandsInSummary {
				commands = append(commands, strings.Join(item.Command, " "))
			}
		case protocol.ItemFunctionCallOutput:
			toolEvents++
		}
	}

	var sections []string
	if prevSummary != "" {
		sections = append(sections, "Building on previous checkpoint: "+prevSummary)
	}
	sections = append(sections, fmt.Sprintf("Checkpoint covers %d exchanges and %d tool events.", exchanges, toolEvents))
	if len(commands) > 0 {
		sections = append(sections, "Key commands: "+strings.Join(commands, " | "))
	}
	if len(actionLines) > 0 {
		sections = append(sections, strings.Join(actionLines, " \n"))
	}
	return strings.Join(sections, "\n\n")
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > actionSnippetLen {
		return s[:actionSnippetLen] + "…"
	}
	return s
}

// FlattenTranscript renders a span of history as role-prefixed plain text
// for the summarization prompt, capped at MaxTranscriptBytes.
func FlattenTranscript(span []protocol.ResponseItem) string {
	var sb strings.Builder
	for _, item := range span {
		switch item.Type {
		case protocol.ItemMessage:
			fmt.Fprintf(&sb, "%s: %s\n", item.Role, item.Text())
		case protocol.ItemFunctionCall, protocol.ItemLocalShellCall:
			fmt.Fprintf(&sb, "tool call %s(%s)\n", item.Name, item.Arguments)
		case protocol.ItemFunctionCallOutput:
			fmt.Fprintf(&sb, "tool output: %s\n", item.Output)
		}
		if sb.Len() > MaxTranscriptBytes {
			break
		}
	}
	out := sb.String()
	if len(out) > MaxTranscriptBytes {
		out = out[:MaxTranscriptBytes] + "\n(transcript truncated)"
	}
	return out
}

// MakeCheckpointMessage wraps checkpoint text in the ResponseItem it will
// occupy in history: a synthetic user message prefixed so the model (and
// any reader of the transcript) can recognize it as a checkpoint envelope
// rather than the user's own words.
func MakeCheckpointMessage(text string) protocol.ResponseItem {
	return protocol.NewMessage("user", protocol.TextItem(CheckpointPrefix+text))
}

// ApplyCompaction rebuilds history, replacing [bounds.Start, bounds.End)
// with, in order: a checkpoint message carrying prevSummary (when
// non-empty) and a checkpoint message carrying the newly built summary —
// while preserving every item before Start (including the pinned goal
// message) and every item from bounds.End onward (the tail, including the
// turn that was deliberately left unprocessed by ComputeSliceBounds).
func ApplyCompaction(history []protocol.ResponseItem, bounds SliceBounds, prevSummary, summary string) []protocol.ResponseItem {
	out := make([]protocol.ResponseItem, 0, len(history)-(bounds.End-bounds.Start)+2)
	out = append(out, history[:bounds.Start]...)
	if prevSummary != "" {
		out = append(out, MakeCheckpointMessage(prevSummary))
	}
	out = append(out, MakeCheckpointMessage(summary))
	out = append(out, history[bounds.End:]...)
	return out
}
