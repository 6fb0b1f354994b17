package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/riftlab/turnengine/internal/codesearch"
	"github.com/riftlab/turnengine/internal/protocol"
)

// RegisterCodeSearchTools wires read_definitions against the filesystem.
func RegisterCodeSearchTools(r *Registry) {
	r.Register("read_definitions", readDefinitionsHandler())
}

func readDefinitionsHandler() Handler {
	return func(ctx context.Context, callID string, args json.RawMessage) (protocol.ResponseItem, error) {
		var payload struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.Path == "" {
			return protocol.ResponseItem{}, fmt.Errorf("failed to parse function arguments: path is required")
		}

		source, err := os.ReadFile(payload.Path)
		if err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}

		defs, err := codesearch.FindDefinitions(ctx, payload.Path, source)
		if err != nil {
			return protocol.NewFunctionCallOutput(callID, err.Error(), false), nil
		}

		out, err := json.Marshal(defs)
		if err != nil {
			return protocol.ResponseItem{}, fmt.Errorf("marshal definitions: %w", err)
		}
		return protocol.NewFunctionCallOutput(callID, string(out), true), nil
	}
}
