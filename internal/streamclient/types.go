// Package streamclient turns a model provider's server-sent-events HTTP
// response into the typed event sequence the orchestrator consumes.
package streamclient

import "github.com/riftlab/turnengine/internal/protocol"

// EventKind discriminates a StreamEvent.
type EventKind string

const (
	EventCreated                  EventKind = "created"
	EventOutputTextDelta           EventKind = "output_text_delta"
	EventReasoningSummaryTextDelta EventKind = "reasoning_summary_text_delta"
	EventReasoningTextDelta        EventKind = "reasoning_text_delta"
	EventOutputItemDone            EventKind = "output_item_done"
	EventRateLimits                EventKind = "rate_limits"
	EventCompleted                 EventKind = "completed"
	EventError                     EventKind = "error"
)

// RateLimitSnapshot mirrors the provider's current rate-limit headers.
type RateLimitSnapshot struct {
	RequestsRemaining int `json:"requests_remaining"`
	TokensRemaining   int `json:"tokens_remaining"`
	ResetSeconds      int `json:"reset_seconds"`
}

// TransportError surfaces a non-recoverable failure of the underlying
// connection (as opposed to EventError, which the provider itself sent).
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string { return e.Message }

// StreamEvent is one item of the typed event sequence a turn's stream
// produces. Exactly one of the payload fields is meaningful, selected by
// Kind. All deltas for a given item precede that item's OutputItemDone;
// Completed is always the last event of a successful stream.
type StreamEvent struct {
	Kind EventKind

	ResponseID string                 // Created, Completed
	Delta      string                 // *TextDelta
	ItemID     string                 // *TextDelta, OutputItemDone
	Item       *protocol.ResponseItem // OutputItemDone
	SequenceNumber *int               // OutputItemDone
	OutputIndex    *int               // OutputItemDone
	RateLimits *RateLimitSnapshot     // RateLimits
	Usage      *protocol.TokenUsage   // Completed
	Err        error                  // Error
}
