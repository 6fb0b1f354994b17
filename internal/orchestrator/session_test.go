package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/safety"
	"github.com/riftlab/turnengine/internal/sandbox"
	"github.com/riftlab/turnengine/internal/streamclient"
	"github.com/riftlab/turnengine/internal/tools"
)

// scriptedModel serves one canned SSE response per request and records
// every prompt body it receives.
type scriptedModel struct {
	mu       sync.Mutex
	requests []protocol.Prompt
	script   [][]string
}

func (m *scriptedModel) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var prompt protocol.Prompt
		json.Unmarshal(body, &prompt)

		m.mu.Lock()
		m.requests = append(m.requests, prompt)
		turn := len(m.requests) - 1
		var lines []string
		if turn < len(m.script) {
			lines = m.script[turn]
		}
		m.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			w.Write([]byte("data: " + l + "\n"))
		}
	}
}

func (m *scriptedModel) request(i int) protocol.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func newTestSession(t *testing.T, model *scriptedModel, sink Sink) *Session {
	t.Helper()
	srv := httptest.NewServer(model.handler())
	t.Cleanup(srv.Close)

	registry := tools.NewRegistry()
	gate := safety.NewGate(protocol.ApprovalOnRequest, protocol.SandboxPolicy{Kind: protocol.SandboxDangerFullAccess})
	tools.RegisterBuiltins(registry, tools.BuiltinWiring{
		Exec: sandbox.NewExecutor(),
		Gate: gate,
	})

	return NewSession(Config{
		Client: streamclient.NewClient(srv.URL, "test-key"),
		Tools:  registry,
		Sink:   sink,
		Model:  "test-model",
	})
}

func TestTurnLoopFeedsShellOutputBack(t *testing.T) {
	model := &scriptedModel{script: [][]string{
		{
			`{"type":"response.created","response_id":"r1"}`,
			`{"type":"response.output_item.done","item":{"type":"function_call","name":"shell","call_id":"c1","arguments":"{\"command\":[\"/bin/echo\",\"tool harness\"]}"}}`,
			`{"type":"response.completed","response_id":"r1"}`,
		},
		{
			`{"type":"response.created","response_id":"r2"}`,
			`{"type":"response.output_item.done","item":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"ran it"}]}}`,
			`{"type":"response.completed","response_id":"r2","usage":{"total_tokens":42}}`,
		},
	}}

	var mu sync.Mutex
	var events []Event
	sess := newTestSession(t, model, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	if err := sess.SubmitUserMessage(context.Background(), "run echo"); err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	// The second request's input must carry the function_call_output with
	// the exec result.
	second := model.request(1)
	var fco *protocol.ResponseItem
	for i := range second.Input {
		if second.Input[i].Type == protocol.ItemFunctionCallOutput && second.Input[i].CallID == "c1" {
			fco = &second.Input[i]
		}
	}
	if fco == nil {
		t.Fatalf("second prompt has no function_call_output for c1: %+v", second.Input)
	}
	var payload struct {
		Metadata struct {
			ExitCode int `json:"exit_code"`
		} `json:"metadata"`
		Output string `json:"output"`
	}
	if err := json.Unmarshal([]byte(fco.Output), &payload); err != nil {
		t.Fatalf("function_call_output body is not the exec JSON blob: %v", err)
	}
	if payload.Metadata.ExitCode != 0 {
		t.Errorf("metadata.exit_code = %d, want 0", payload.Metadata.ExitCode)
	}
	if !strings.Contains(payload.Output, "tool harness") {
		t.Errorf("output %q missing command output", payload.Output)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawComplete, sawTokens bool
	for _, e := range events {
		if e.Kind == EventTaskComplete {
			sawComplete = true
		}
		if e.Kind == EventTokenCount && e.TokensUsed == 42 {
			sawTokens = true
		}
		if e.Kind != EventSessionConfigured && e.SubID == "" {
			t.Errorf("event %s missing sub_id", e.Kind)
		}
	}
	if !sawComplete {
		t.Error("no TaskComplete event after the final turn")
	}
	if !sawTokens {
		t.Error("no TokenCount event carrying the reported usage")
	}
}

func TestTurnLoopHistoryOrderPreserved(t *testing.T) {
	model := &scriptedModel{script: [][]string{
		{
			`{"type":"response.created","response_id":"r1"}`,
			`{"type":"response.output_item.done","item":{"type":"function_call","name":"wait","call_id":"w1","arguments":"{}"}}`,
			`{"type":"response.output_item.done","item":{"type":"function_call","name":"wait","call_id":"w2","arguments":"{}"}}`,
			`{"type":"response.completed","response_id":"r1"}`,
		},
		{
			`{"type":"response.created","response_id":"r2"}`,
			`{"type":"response.completed","response_id":"r2"}`,
		},
	}}

	sess := newTestSession(t, model, nil)
	if err := sess.SubmitUserMessage(context.Background(), "go"); err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	// Outputs must be appended in call submission order regardless of which
	// concurrent tool task finished first.
	history := sess.History()
	var outCallIDs []string
	for _, item := range history {
		if item.Type == protocol.ItemFunctionCallOutput {
			outCallIDs = append(outCallIDs, item.CallID)
		}
	}
	if len(outCallIDs) != 2 || outCallIDs[0] != "w1" || outCallIDs[1] != "w2" {
		t.Errorf("tool outputs out of order: %v", outCallIDs)
	}
}

func TestUpdatePlanEventAndOutput(t *testing.T) {
	planArgs := `{\"explanation\":\"Tool harness check\",\"plan\":[{\"step\":\"Inspect workspace\",\"status\":\"in_progress\"},{\"step\":\"Report results\",\"status\":\"pending\"}]}`
	model := &scriptedModel{script: [][]string{
		{
			`{"type":"response.created","response_id":"r1"}`,
			`{"type":"response.output_item.done","item":{"type":"function_call","name":"update_plan","call_id":"p1","arguments":"` + planArgs + `"}}`,
			`{"type":"response.completed","response_id":"r1"}`,
		},
		{
			`{"type":"response.created","response_id":"r2"}`,
			`{"type":"response.completed","response_id":"r2"}`,
		},
	}}

	srv := httptest.NewServer(model.handler())
	defer srv.Close()

	var plans []tools.PlanUpdateEvent
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, tools.BuiltinWiring{
		OnPlanUpdate: func(e tools.PlanUpdateEvent) { plans = append(plans, e) },
	})
	sess := NewSession(Config{
		Client: streamclient.NewClient(srv.URL, "k"),
		Tools:  registry,
	})

	if err := sess.SubmitUserMessage(context.Background(), "plan it"); err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if len(plans) != 1 {
		t.Fatalf("plan events = %d, want 1", len(plans))
	}
	if plans[0].Plan[0].Step != "Inspect workspace" || plans[0].Plan[0].Status != "in_progress" {
		t.Errorf("plan payload mismatch: %+v", plans[0])
	}

	second := model.request(1)
	found := false
	for _, item := range second.Input {
		if item.Type == protocol.ItemFunctionCallOutput && item.CallID == "p1" {
			found = true
			if item.Output != "Plan updated" {
				t.Errorf("update_plan output = %q, want the literal \"Plan updated\"", item.Output)
			}
		}
	}
	if !found {
		t.Error("no function_call_output for the update_plan call")
	}
}

func TestUpdatePlanMalformedProducesNoEvent(t *testing.T) {
	model := &scriptedModel{script: [][]string{
		{
			`{"type":"response.created","response_id":"r1"}`,
			`{"type":"response.output_item.done","item":{"type":"function_call","name":"update_plan","call_id":"p1","arguments":"{\"explanation\":\"Missing plan data\"}"}}`,
			`{"type":"response.completed","response_id":"r1"}`,
		},
		{
			`{"type":"response.created","response_id":"r2"}`,
			`{"type":"response.completed","response_id":"r2"}`,
		},
	}}

	srv := httptest.NewServer(model.handler())
	defer srv.Close()

	var plans []tools.PlanUpdateEvent
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, tools.BuiltinWiring{
		OnPlanUpdate: func(e tools.PlanUpdateEvent) { plans = append(plans, e) },
	})
	sess := NewSession(Config{
		Client: streamclient.NewClient(srv.URL, "k"),
		Tools:  registry,
	})
	if err := sess.SubmitUserMessage(context.Background(), "plan it"); err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	if len(plans) != 0 {
		t.Errorf("malformed update_plan must not emit a plan event, got %+v", plans)
	}
	second := model.request(1)
	for _, item := range second.Input {
		if item.Type == protocol.ItemFunctionCallOutput && item.CallID == "p1" {
			if item.Success == nil || *item.Success {
				t.Errorf("malformed update_plan output must have success=false: %+v", item)
			}
			if !strings.Contains(item.Output, "failed to parse function arguments") {
				t.Errorf("output = %q, want a parse-failure message", item.Output)
			}
		}
	}
}

func TestLocalShellCallRoutesToShell(t *testing.T) {
	model := &scriptedModel{script: [][]string{
		{
			`{"type":"response.created","response_id":"r1"}`,
			`{"type":"response.output_item.done","item":{"type":"local_shell_call","call_id":"ls1","command":["/bin/echo","tool harness"]}}`,
			`{"type":"response.completed","response_id":"r1"}`,
		},
		{
			`{"type":"response.created","response_id":"r2"}`,
			`{"type":"response.completed","response_id":"r2"}`,
		},
	}}

	sess := newTestSession(t, model, nil)
	if err := sess.SubmitUserMessage(context.Background(), "run it"); err != nil {
		t.Fatalf("SubmitUserMessage: %v", err)
	}

	second := model.request(1)
	for _, item := range second.Input {
		if item.Type == protocol.ItemFunctionCallOutput && item.CallID == "ls1" {
			if item.Success == nil || !*item.Success {
				t.Fatalf("local_shell_call output should succeed: %+v", item)
			}
			if !strings.Contains(item.Output, "tool harness") {
				t.Errorf("output %q missing command output", item.Output)
			}
			return
		}
	}
	t.Fatal("no function_call_output for the local_shell_call")
}
