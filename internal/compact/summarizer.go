package compact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/streamclient"
)

// summarizeInstructions is the developer message sent with every
// checkpoint-summary request.
const summarizeInstructions = `Summarize the transcript below into a concise checkpoint for a coding
session. Preserve: the user's goal, decisions made, files and commands
touched, unresolved problems, and anything the assistant promised to do
next. Output plain text only.`

// summarizeTimeout bounds one summarization round trip so a hung request
// can't stall the compaction pass indefinitely.
const summarizeTimeout = 60 * time.Second

// ModelSummarizer builds a Summarizer that asks the model to write the
// checkpoint: a non-stored prompt carrying the summarization instructions
// as a developer message and the previous checkpoint plus the flattened
// slice transcript as the user message. Any transport failure or empty
// result makes BuildCheckpointSummary fall back to DeterministicSummary.
func ModelSummarizer(client *streamclient.Client, model string, prevSummary func() string) Summarizer {
	return func(span []protocol.ResponseItem) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
		defer cancel()

		var userMsg strings.Builder
		if prev := prevSummary(); prev != "" {
			fmt.Fprintf(&userMsg, "Previous checkpoint:\n%s\n\n", prev)
		}
		userMsg.WriteString("Transcript:\n")
		userMsg.WriteString(FlattenTranscript(span))

		prompt := protocol.Prompt{
			Model: model,
			Store: false,
			Input: []protocol.ResponseItem{
				protocol.NewMessage("developer", protocol.TextItem(summarizeInstructions)),
				protocol.NewMessage("user", protocol.TextItem(userMsg.String())),
			},
		}

		var text strings.Builder
		err := client.Stream(ctx, prompt, func(ev streamclient.StreamEvent) error {
			switch ev.Kind {
			case streamclient.EventOutputTextDelta:
				text.WriteString(ev.Delta)
			case streamclient.EventOutputItemDone:
				// A terminal assistant message supersedes the accumulated
				// deltas when present; some servers only send the item.
				if ev.Item != nil && ev.Item.Type == protocol.ItemMessage && ev.Item.Role == "assistant" {
					if t := ev.Item.Text(); t != "" {
						text.Reset()
						text.WriteString(t)
					}
				}
			case streamclient.EventError:
				return ev.Err
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		out := strings.TrimSpace(text.String())
		if out == "" {
			return "", fmt.Errorf("summarizer returned empty text")
		}
		return out, nil
	}
}
