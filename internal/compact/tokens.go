// Package compact implements automatic context-window compaction: it
// decides which span of conversation history to fold into a single
// checkpoint summary once the session's token usage grows too large,
// always pinning the first user message and cutting only on turn
// boundaries.
package compact

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/riftlab/turnengine/internal/protocol"
)

// BytesPerToken is the crude token estimate used throughout: every four
// bytes of text content is counted as one token. This is the default and
// the fallback whenever a precise encoding isn't available.
const BytesPerToken = 4

// imageTokenDivisor is the token estimate for an input image block: its
// (short) data-URL or reference length divided by ten, since an image's
// real token cost is dominated by its pixels, not its textual reference.
const imageTokenDivisor = 10

var (
	precise      bool
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
)

// UsePreciseTokens switches EstimateItemTokens from the bytes/4 heuristic to
// a real BPE encoding for the named tiktoken encoding (e.g. "cl100k_base").
// The bytes/4 heuristic remains the default until this is called, and
// remains the fallback afterward if the encoding fails to load.
func UsePreciseTokens(encodingName string) {
	precise = true
	encodingOnce.Do(func() {
		var err error
		encoding, err = tiktoken.GetEncoding(encodingName)
		if err != nil {
			log.Printf("compact: tiktoken encoding %q unavailable, using bytes/4 estimate: %v", encodingName, err)
		}
	})
}

// preciseTokens counts text with the loaded BPE encoding when precise
// counting has been enabled and the encoding loaded successfully, falling
// back to the bytes/4 heuristic otherwise.
func preciseTokens(text string) int {
	if text == "" {
		return 0
	}
	if !precise || encoding == nil {
		return len(text) / BytesPerToken
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateItemTokens estimates the token cost of one ResponseItem.
func EstimateItemTokens(item protocol.ResponseItem) int {
	total := 0
	for _, c := range item.Content {
		switch c.Type {
		case protocol.ContentInputText, protocol.ContentOutputText:
			total += preciseTokens(c.Text)
		case protocol.ContentInputImage:
			total += len(c.ImageURL) / imageTokenDivisor
		}
	}
	total += preciseTokens(item.Arguments)
	total += preciseTokens(item.Output)
	for _, s := range item.Summary {
		total += preciseTokens(s.Text)
	}
	return total
}

// EstimateHistoryTokens sums EstimateItemTokens over a whole history.
func EstimateHistoryTokens(history []protocol.ResponseItem) int {
	total := 0
	for _, item := range history {
		total += EstimateItemTokens(item)
	}
	return total
}
