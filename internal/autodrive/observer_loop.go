package autodrive

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/riftlab/turnengine/internal/compact"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/streamclient"
)

// observerInstructions frames the meta session's role: it watches, it does
// not drive, and everything it says must go through its tools.
const observerInstructions = `You are observing another coding session's transcript. Assess progress
toward the stated goal. Use pro_recommend to surface a recommendation,
assist_core to post a developer note into the session, pro_submit_user
(when offered) to submit a follow-up user message, agent_run to delegate
an investigation, or wait to do nothing this round.`

// ObserverActionKind discriminates what the observer asked the host to do.
type ObserverActionKind string

const (
	ObserverRecommend     ObserverActionKind = "recommend"
	ObserverDeveloperNote ObserverActionKind = "developer_note"
	ObserverSubmitUser    ObserverActionKind = "submit_user"
	ObserverAgentRun      ObserverActionKind = "agent_run"
	ObserverWait          ObserverActionKind = "wait"
)

// ObserverAction is one effect the observer requested via a tool call. The
// host interprets it: recommendations surface in the UI, developer notes
// and user submissions are injected into the primary session.
type ObserverAction struct {
	Kind ObserverActionKind
	Text string
}

// Observer runs the secondary "meta" session: at each trigger it reads a
// budgeted share of the primary transcript plus its own prior log, asks
// the model what (if anything) to do, and returns the typed actions its
// tool calls requested.
type Observer struct {
	Client        *streamclient.Client
	Model         string
	ContextWindow int
	Autonomous    bool

	log []protocol.ResponseItem
}

// Observe runs one observer round. transcript is the primary session's
// history snapshot; reason is what woke the observer and selects which
// tools it is offered.
func (o *Observer) Observe(ctx context.Context, reason TriggerReason, goal string, transcript []protocol.ResponseItem) ([]ObserverAction, error) {
	budget := ComputeTokenBudget(o.ContextWindow)
	trimmed := trimToTokenBudget(transcript, budget.TranscriptTokens)
	ownLog := trimToTokenBudget(o.log, budget.OwnLogTokens)

	offered := ObserverTools(reason, o.Autonomous)

	var user strings.Builder
	user.WriteString("Goal: " + goal + "\n\n")
	if len(ownLog) > 0 {
		user.WriteString("Your prior observations:\n")
		user.WriteString(compact.FlattenTranscript(ownLog))
		user.WriteString("\n")
	}
	user.WriteString("Primary transcript:\n")
	user.WriteString(compact.FlattenTranscript(trimmed))

	prompt := protocol.Prompt{
		Model: o.Model,
		Store: false,
		Tools: observerToolDefs(offered),
		Input: []protocol.ResponseItem{
			protocol.NewMessage("developer", protocol.TextItem(observerInstructions)),
			protocol.NewMessage("user", protocol.TextItem(user.String())),
		},
	}

	var actions []ObserverAction
	err := o.Client.Stream(ctx, prompt, func(ev streamclient.StreamEvent) error {
		if ev.Kind == streamclient.EventError {
			return ev.Err
		}
		if ev.Kind != streamclient.EventOutputItemDone || ev.Item == nil {
			return nil
		}
		item := *ev.Item
		o.log = append(o.log, item)
		if item.Type != protocol.ItemFunctionCall {
			return nil
		}
		if action, ok := actionForCall(item, offered); ok {
			actions = append(actions, action)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func actionForCall(item protocol.ResponseItem, offered []string) (ObserverAction, bool) {
	allowed := false
	for _, name := range offered {
		if name == item.Name {
			allowed = true
			break
		}
	}
	if !allowed {
		return ObserverAction{}, false
	}
	text := observerCallText(item.Arguments)
	switch item.Name {
	case "pro_recommend":
		return ObserverAction{Kind: ObserverRecommend, Text: text}, true
	case "assist_core":
		return ObserverAction{Kind: ObserverDeveloperNote, Text: text}, true
	case "pro_submit_user":
		return ObserverAction{Kind: ObserverSubmitUser, Text: text}, true
	case "agent_run":
		return ObserverAction{Kind: ObserverAgentRun, Text: item.Arguments}, true
	case "wait":
		return ObserverAction{Kind: ObserverWait}, true
	}
	return ObserverAction{}, false
}

// trimToTokenBudget drops items from the front until the remainder fits
// the budget, keeping the most recent context.
func trimToTokenBudget(items []protocol.ResponseItem, budget int) []protocol.ResponseItem {
	if budget <= 0 {
		return nil
	}
	total := compact.EstimateHistoryTokens(items)
	start := 0
	for start < len(items) && total > budget {
		total -= compact.EstimateItemTokens(items[start])
		start++
	}
	return items[start:]
}

func observerToolDefs(names []string) []protocol.Tool {
	defs := make([]protocol.Tool, 0, len(names))
	for _, name := range names {
		defs = append(defs, protocol.Tool{
			Name:        name,
			Description: observerToolDescription(name),
			InputSchema: observerToolSchema(name),
		})
	}
	return defs
}

func observerToolDescription(name string) string {
	switch name {
	case "pro_recommend":
		return "Surface a recommendation about the primary session's progress."
	case "assist_core":
		return "Post a developer note into the primary session."
	case "pro_submit_user":
		return "Submit a follow-up user message to the primary session."
	case "agent_run":
		return "Delegate an investigation to a sub-agent."
	case "wait":
		return "Do nothing this round."
	}
	return name
}

func observerToolSchema(name string) map[string]interface{} {
	switch name {
	case "wait":
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	case "agent_run":
		return map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"prompt":   map[string]interface{}{"type": "string"},
				"writable": map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"prompt"},
		}
	default:
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
			"required":   []string{"text"},
		}
	}
}

// observerCallText pulls the "text" argument out of an observer tool call,
// falling back to the raw arguments for unstructured payloads.
func observerCallText(arguments string) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(arguments), &payload); err == nil && payload.Text != "" {
		return payload.Text
	}
	return arguments
}
