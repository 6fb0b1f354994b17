package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/riftlab/turnengine/internal/browser"
	"github.com/riftlab/turnengine/internal/protocol"
)

// RegisterBrowserTools wires browser_open/browser_click/browser_type/
// browser_screenshot against a shared browser.Tracker. browser_fetch is
// deliberately excluded from page tracking.
func RegisterBrowserTools(r *Registry, tracker *browser.Tracker) {
	r.Register("browser_open", browserOpenHandler(tracker))
	r.Register("browser_click", browserClickHandler(tracker))
	r.Register("browser_type", browserTypeHandler(tracker))
	r.Register("browser_screenshot", browserScreenshotHandler(tracker))
}

func browserOpenHandler(tracker *browser.Tracker) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.URL == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: url is required")
		}
		if err := tracker.Open(ctx, callID, payload.URL); err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}
		return protocol.NewFunctionCallOutput(callID, fmt.Sprintf("200 opened %s", payload.URL), true), nil
	}
}

func browserClickHandler(tracker *browser.Tracker) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			PageID   string `json:"page_id"`
			Selector string `json:"selector"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.Selector == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: selector is required")
		}
		pageID := resolvePageID(payload.PageID, callID)
		if err := tracker.Click(ctx, pageID, payload.Selector); err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}
		return protocol.NewFunctionCallOutput(callID, "200 clicked "+payload.Selector, true), nil
	}
}

func browserTypeHandler(tracker *browser.Tracker) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			PageID   string `json:"page_id"`
			Selector string `json:"selector"`
			Text     string `json:"text"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.Selector == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: selector is required")
		}
		pageID := resolvePageID(payload.PageID, callID)
		if err := tracker.Type(ctx, pageID, payload.Selector, payload.Text); err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}
		return protocol.NewFunctionCallOutput(callID, "200 typed into "+payload.Selector, true), nil
	}
}

func browserScreenshotHandler(tracker *browser.Tracker) Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			PageID string `json:"page_id"`
		}
		_ = json.Unmarshal(args, &payload)
		pageID := resolvePageID(payload.PageID, callID)
		data, err := tracker.Screenshot(ctx, pageID)
		if err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		return protocol.NewFunctionCallOutput(callID, "200 "+encoded, true), nil
	}
}

// resolvePageID lets a browser_* call explicitly target a previously
// opened page; omitting page_id targets the page the current call_id
// itself opened (the common single-page case).
func resolvePageID(pageID, callID string) string {
	if pageID != "" {
		return pageID
	}
	return callID
}
