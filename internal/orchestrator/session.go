// Package orchestrator implements the session engine's turn loop: it owns
// conversation history, submits a Prompt to the streaming response client
// each turn, dispatches tool calls through the tool registry, persists
// every item to the rollout, and triggers auto-compaction when the
// estimated token footprint grows too large.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/riftlab/turnengine/internal/compact"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
	"github.com/riftlab/turnengine/internal/streamclient"
	"github.com/riftlab/turnengine/internal/tools"
)

// MaxTurnsPerSubmission bounds how many model round trips one user
// submission may take before the orchestrator gives up and reports an
// error.
const MaxTurnsPerSubmission = 50

// DefaultCompactionTokenLimit is the soft token budget compaction targets
// when the caller doesn't configure one explicitly.
const DefaultCompactionTokenLimit = 24_000

// Config wires every collaborator a Session needs.
type Config struct {
	Client       *streamclient.Client
	Tools        *tools.Registry
	Recorder     *rollout.Recorder
	Sink         Sink
	Model        string
	ModelFamily  string
	SystemPrompt string
	ToolDefs     []protocol.Tool
	Store        bool
	Environment  map[string]string
	Summarize    compact.Summarizer
	CompactionTokenLimit int
}

// Session owns one conversation's history and turn loop. Conversation
// history is mutated only by the orchestrator goroutine that runs
// RunUntilDone/SubmitUserMessage; other callers observe it through History()
// snapshots.
type Session struct {
	ID  protocol.ConversationId
	cfg Config

	mu          sync.Mutex
	history     []protocol.ResponseItem
	reqOrd      int
	subID       string // id of the in-flight submission, stamped on every event
	cancel      context.CancelFunc
	prevSummary string // text of the most recent checkpoint, carried into the next one
}

// NewSession starts a brand-new conversation and announces it to the sink.
func NewSession(cfg Config) *Session {
	s := &Session{ID: protocol.NewConversationId(), cfg: cfg}
	s.emit(Event{Kind: EventSessionConfigured, Summary: s.ID.String()})
	return s
}

// Resume rebuilds a Session from a prior rollout's reconstructed history.
func Resume(cfg Config, initial rollout.InitialHistory) *Session {
	id := protocol.ConversationId{}
	if initial.Meta != nil {
		id = initial.Meta.ID
	}
	s := &Session{ID: id, cfg: cfg, history: append([]protocol.ResponseItem(nil), initial.Items...)}
	s.emit(Event{Kind: EventSessionConfigured, Summary: s.ID.String()})
	return s
}

// History returns a snapshot of the current conversation history.
func (s *Session) History() []protocol.ResponseItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ResponseItem(nil), s.history...)
}

func (s *Session) emit(e Event) {
	if e.SubID == "" {
		s.mu.Lock()
		e.SubID = s.subID
		s.mu.Unlock()
	}
	if s.cfg.Sink != nil {
		s.cfg.Sink(e)
	}
}

// PrevSummary returns the text of the most recent checkpoint summary, for
// the summarizer to carry into the next one.
func (s *Session) PrevSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevSummary
}

func (s *Session) appendHistory(item protocol.ResponseItem) {
	s.mu.Lock()
	s.history = append(s.history, item)
	s.mu.Unlock()
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordItem(item)
	}
}

// InjectDeveloperNote appends a developer-role message to history without
// starting a turn; the model sees it on the next submission. Used by the
// observer loop to steer the session between turns.
func (s *Session) InjectDeveloperNote(text string) {
	s.appendHistory(protocol.NewMessage("developer", protocol.TextItem(text)))
}

// SubmitUserMessage appends a user message and runs the turn loop until
// the model stops calling tools or the turn is aborted.
func (s *Session) SubmitUserMessage(ctx context.Context, text string) error {
	subID := NewTurnID()
	s.appendHistory(protocol.NewMessage("user", protocol.TextItem(text)))
	s.emit(Event{Kind: EventUserMessage, SubID: subID, Message: &protocol.ResponseItem{Type: protocol.ItemMessage, Role: "user", Content: []protocol.ContentItem{protocol.TextItem(text)}}})
	return s.runUntilDone(ctx, subID)
}

// Abort cancels the in-flight turn, if any. Pending tool tasks observe ctx
// cancellation through their own context and any pending approval request
// is resolved as denied.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunUntilDone drives the turn loop: stream a response, dispatch any tool
// calls it produced, feed their outputs back, and repeat until a turn
// produces no tool calls (TaskComplete) or the turn is aborted/erroring.
func (s *Session) RunUntilDone(ctx context.Context) error {
	return s.runUntilDone(ctx, NewTurnID())
}

// runUntilDone is RunUntilDone with the submission id chosen by the caller.
func (s *Session) runUntilDone(ctx context.Context, subID string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.subID = subID
	s.mu.Unlock()
	defer cancel()

	for turn := 0; turn < MaxTurnsPerSubmission; turn++ {
		calls, responseID, err := s.streamOnce(turnCtx)
		if err != nil {
			if turnCtx.Err() != nil {
				s.emit(Event{Kind: EventTurnAborted, Reason: "turn aborted"})
				s.denyPendingApprovals(calls)
				return nil
			}
			return err
		}
		if len(calls) == 0 {
			s.emit(Event{Kind: EventTaskComplete, Summary: responseID})
			return nil
		}

		outputs := s.dispatchAll(turnCtx, calls)
		for _, o := range outputs {
			s.appendHistory(o)
		}
		s.maybeCompact()
	}
	return fmt.Errorf("exceeded max turns (%d) for one submission", MaxTurnsPerSubmission)
}

// streamOnce opens one streaming response, appending every OutputItemDone
// item (tool calls included) to history immediately, and returns the ordered
// list of FunctionCall, LocalShellCall and CustomToolCall items the model
// produced this turn.
func (s *Session) streamOnce(ctx context.Context) ([]protocol.ResponseItem, string, error) {
	s.mu.Lock()
	s.reqOrd++
	ordinal := s.reqOrd
	s.mu.Unlock()

	prompt := protocol.Prompt{
		Input:        s.History(),
		Tools:        s.cfg.ToolDefs,
		Store:        s.cfg.Store,
		Model:        s.cfg.Model,
		ModelFamily:  s.cfg.ModelFamily,
		SystemPrompt: s.cfg.SystemPrompt,
		Environment:  s.cfg.Environment,
	}

	var calls []protocol.ResponseItem
	var responseID string
	var streamErr error

	err := s.cfg.Client.Stream(ctx, prompt, func(ev streamclient.StreamEvent) error {
		switch ev.Kind {
		case streamclient.EventCreated:
			responseID = ev.ResponseID
		case streamclient.EventOutputTextDelta:
			s.emit(Event{Kind: EventAgentMessageDelta, Delta: ev.Delta, CallID: ev.ItemID, Order: Order{RequestOrdinal: ordinal}})
		case streamclient.EventReasoningTextDelta:
			s.emit(Event{Kind: EventReasoningDelta, Delta: ev.Delta, CallID: ev.ItemID, Order: Order{RequestOrdinal: ordinal}})
		case streamclient.EventReasoningSummaryTextDelta:
			s.emit(Event{Kind: EventReasoningSummaryDelta, Delta: ev.Delta, CallID: ev.ItemID, Order: Order{RequestOrdinal: ordinal}})
		case streamclient.EventOutputItemDone:
			if ev.Item == nil {
				return nil
			}
			item := *ev.Item
			order := Order{RequestOrdinal: ordinal, OutputIndex: ev.OutputIndex, SequenceNumber: ev.SequenceNumber}
			if item.Type == protocol.ItemFunctionCall || item.Type == protocol.ItemLocalShellCall || item.Type == protocol.ItemCustomToolCall {
				calls = append(calls, item)
				s.appendHistory(item)
			} else {
				s.appendHistory(item)
				if item.Type == protocol.ItemMessage {
					s.emit(Event{Kind: EventAgentMessage, Message: &item, Order: order})
				}
			}
		case streamclient.EventRateLimits:
			// Forwarded at presentation layer; no history effect.
		case streamclient.EventCompleted:
			responseID = ev.ResponseID
			if ev.Usage != nil {
				s.emit(Event{Kind: EventTokenCount, Usage: ev.Usage, TokensUsed: ev.Usage.TotalTokens, Order: Order{RequestOrdinal: ordinal}})
			}
		case streamclient.EventError:
			streamErr = ev.Err
			return ev.Err
		}
		return nil
	})
	if err != nil {
		if streamErr != nil {
			return calls, responseID, streamErr
		}
		return calls, responseID, err
	}
	return calls, responseID, nil
}

// dispatchAll runs every call concurrently on its own goroutine. Two
// parallel tool tasks may complete out of order; outputs are returned in
// call submission order so the next prompt always reads consistently.
func (s *Session) dispatchAll(ctx context.Context, calls []protocol.ResponseItem) []protocol.ResponseItem {
	outputs := make([]protocol.ResponseItem, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call protocol.ResponseItem) {
			defer wg.Done()
			// Custom (externally-hosted) tool calls get begin/end markers so
			// the UI can attribute their latency; built-ins emit their own
			// richer Exec*/Patch* events instead.
			if call.Type == protocol.ItemCustomToolCall {
				s.emit(Event{Kind: EventMcpToolCallBegin, CallID: call.CallID, ToolName: call.Name})
			}
			name, args := dispatchTarget(call)
			out, err := s.cfg.Tools.Dispatch(ctx, name, call.CallID, args)
			if err != nil {
				log.Printf("[turnengine] tool %s (%s) failed: %v", call.Name, call.CallID, err)
				out = protocol.NewFunctionCallOutput(call.CallID, err.Error(), false)
			}
			if call.Type == protocol.ItemCustomToolCall {
				success := out.Success == nil || *out.Success
				s.emit(Event{Kind: EventMcpToolCallEnd, CallID: call.CallID, ToolName: call.Name, Success: success})
			}
			outputs[i] = out
		}(i, call)
	}
	wg.Wait()
	return outputs
}

// dispatchTarget resolves a call item to the registry name and argument
// payload to dispatch. A local_shell_call carries its command vector
// inline rather than a named tool with JSON arguments; it routes to the
// shell handler with synthesized arguments.
func dispatchTarget(call protocol.ResponseItem) (string, []byte) {
	if call.Type == protocol.ItemLocalShellCall {
		args, err := json.Marshal(map[string]interface{}{"command": call.Command})
		if err != nil {
			args = []byte("{}")
		}
		return "shell", args
	}
	return call.Name, []byte(call.Arguments)
}

// denyPendingApprovals resolves every call that never got dispatched into a
// denied function_call_output, so the model sees a consistent result for
// every call it made even when the turn was aborted mid-flight.
func (s *Session) denyPendingApprovals(calls []protocol.ResponseItem) {
	for _, call := range calls {
		s.appendHistory(protocol.NewFunctionCallOutput(call.CallID, "turn aborted", false))
	}
}

func (s *Session) maybeCompact() {
	limit := s.cfg.CompactionTokenLimit
	if limit <= 0 {
		limit = DefaultCompactionTokenLimit
	}
	history := s.History()
	if compact.EstimateHistoryTokens(history) <= limit {
		return
	}
	bounds, ok := compact.ComputeSliceBounds(history)
	if !ok {
		return
	}

	s.mu.Lock()
	prevSummary := s.prevSummary
	s.mu.Unlock()

	summary := compact.BuildCheckpointSummary(history, bounds, prevSummary, s.cfg.Summarize)

	s.mu.Lock()
	s.history = compact.ApplyCompaction(s.history, bounds, prevSummary, summary)
	s.prevSummary = summary
	s.mu.Unlock()

	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordCompacted(summary)
	}
	s.emit(Event{Kind: EventCompacted, Summary: summary})
}

// NewTurnID mints an opaque sub_id for a turn, used by the UI to
// correlate events belonging to the same request.
func NewTurnID() string { return uuid.NewString() }
