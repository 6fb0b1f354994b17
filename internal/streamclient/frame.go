package streamclient

import (
	"encoding/json"

	"github.com/riftlab/turnengine/internal/protocol"
)

// wireFrame is the raw shape of one SSE data frame before it's classified
// into a StreamEvent.
type wireFrame struct {
	Type           string                 `json:"type"`
	ResponseID     string                 `json:"response_id,omitempty"`
	ItemID         string                 `json:"item_id,omitempty"`
	Delta          string                 `json:"delta,omitempty"`
	Item           *protocol.ResponseItem `json:"item,omitempty"`
	SequenceNumber *int                   `json:"sequence_number,omitempty"`
	OutputIndex    *int                   `json:"output_index,omitempty"`
	RateLimits     *RateLimitSnapshot     `json:"rate_limits,omitempty"`
	Usage          *protocol.TokenUsage   `json:"usage,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

func decodeFrame(payload string) (StreamEvent, bool) {
	var frame wireFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return StreamEvent{}, false
	}

	switch frame.Type {
	case "response.created":
		return StreamEvent{Kind: EventCreated, ResponseID: frame.ResponseID}, true
	case "response.output_text.delta":
		return StreamEvent{Kind: EventOutputTextDelta, ItemID: frame.ItemID, Delta: frame.Delta}, true
	case "response.reasoning_summary_text.delta":
		return StreamEvent{Kind: EventReasoningSummaryTextDelta, ItemID: frame.ItemID, Delta: frame.Delta}, true
	case "response.reasoning_text.delta":
		return StreamEvent{Kind: EventReasoningTextDelta, ItemID: frame.ItemID, Delta: frame.Delta}, true
	case "response.output_item.done":
		return StreamEvent{Kind: EventOutputItemDone, ItemID: frame.ItemID, Item: frame.Item, SequenceNumber: frame.SequenceNumber, OutputIndex: frame.OutputIndex}, true
	case "response.rate_limits.updated":
		return StreamEvent{Kind: EventRateLimits, RateLimits: frame.RateLimits}, true
	case "response.completed":
		return StreamEvent{Kind: EventCompleted, ResponseID: frame.ResponseID, Usage: frame.Usage}, true
	case "error":
		return StreamEvent{Kind: EventError, Err: fmtError(frame.Error)}, true
	default:
		return StreamEvent{}, false
	}
}

func fmtError(msg string) error {
	if msg == "" {
		msg = "unknown stream error"
	}
	return &TransportError{Message: msg}
}
