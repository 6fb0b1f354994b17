package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/riftlab/turnengine/internal/protocol"
)

// Client opens a streaming response against a model provider endpoint and
// turns its SSE frames into StreamEvent values.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{HTTPClient: http.DefaultClient, BaseURL: baseURL, APIKey: apiKey}
}

// StreamCallback receives each StreamEvent as it's parsed off the wire.
// Returning a non-nil error aborts the stream immediately.
type StreamCallback func(StreamEvent) error

// Stream opens the request and feeds every parsed frame to cb until the
// stream ends, ctx is cancelled, or cb returns an error. Dropping ctx
// releases the underlying connection promptly via http's request
// cancellation.
func (c *Client) Stream(ctx context.Context, prompt protocol.Prompt, cb StreamCallback) error {
	body, err := json.Marshal(prompt)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/responses", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &TransportError{Message: fmt.Sprintf("stream request failed: %s: %s", resp.Status, string(data))}
	}

	return c.processStream(ctx, resp.Body, cb)
}

// processStream reads "data: {...}" SSE frames line by line, decoding each
// into a StreamEvent. A frame that fails to parse is logged and skipped
// rather than aborting the whole stream — one malformed frame from the
// provider shouldn't lose everything already buffered.
func (c *Client) processStream(ctx context.Context, body io.Reader, cb StreamCallback) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}

		event, ok := decodeFrame(payload)
		if !ok {
			log.Printf("streamclient: skipping malformed frame: %s", truncateForLog(payload))
			continue
		}

		if err := cb(event); err != nil {
			return err
		}
		if event.Kind == EventCompleted || event.Kind == EventError {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &TransportError{Message: err.Error()}
	}
	return nil
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
