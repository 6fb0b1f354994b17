package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/riftlab/turnengine/internal/browser"
	"github.com/riftlab/turnengine/internal/compact"
	"github.com/riftlab/turnengine/internal/config"
	"github.com/riftlab/turnengine/internal/diffs"
	"github.com/riftlab/turnengine/internal/git"
	"github.com/riftlab/turnengine/internal/orchestrator"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
	"github.com/riftlab/turnengine/internal/safety"
	"github.com/riftlab/turnengine/internal/sandbox"
	"github.com/riftlab/turnengine/internal/streamclient"
	"github.com/riftlab/turnengine/internal/tools"
)

// engine bundles every collaborator a session needs, built once per process
// and shared by the root command's REPL and the resume/serve/agent/drive/
// mcp-server subcommands.
type engine struct {
	store     *config.Store
	settings  config.Settings // store.Get() plus any --model/--approval-policy/--sandbox flag overrides
	cwd       string
	registry  *tools.Registry
	gate      *safety.Gate
	exec      *sandbox.Executor
	tracker   *diffs.TurnDiffTracker
	client    *streamclient.Client
	gitMgr    *git.Manager
	agentPool *tools.AgentPool
	toolDefs  []protocol.Tool

	// sink receives the tool-layer events (exec begin/end, patch apply,
	// plan updates, approval requests) the registry's handlers produce.
	// The subcommand that owns the session points this at the same Sink it
	// hands the orchestrator, so tool events and turn events interleave on
	// one stream. Nil until then; events emitted earlier are dropped.
	sink orchestrator.Sink
}

func (e *engine) emit(ev orchestrator.Event) {
	if e.sink != nil {
		e.sink(ev)
	}
}

// sessionConfig assembles the orchestrator.Config shared by every
// subcommand, pointing both the turn loop and the tool-layer callbacks at
// sink. It leaves Summarize unset; callers that want model-backed
// checkpoint summaries attach one from summarizerFor.
func (e *engine) sessionConfig(recorder *rollout.Recorder, sink orchestrator.Sink, systemPrompt string) orchestrator.Config {
	e.sink = sink
	cfg := orchestrator.Config{
		Client:               e.client,
		Tools:                e.registry,
		Recorder:             recorder,
		Sink:                 sink,
		Model:                e.settings.Model,
		ModelFamily:          e.settings.ModelFamily,
		SystemPrompt:         systemPrompt,
		ToolDefs:             e.toolDefs,
		Store:                true,
		Environment:          environmentContext(e.cwd),
		CompactionTokenLimit: e.settings.CompactionTokenLimit,
	}
	return cfg
}

// newEngine builds the tool registry and every collaborator it dispatches
// against, then wires them all into a single tools.Registry.
func newEngine() (*engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	store, err := config.NewStore()
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}
	settings := store.Get()
	if flagModel != "" {
		settings.Model = flagModel
	}
	if flagApprovalPolicy != "" {
		settings.ApprovalPolicy = resolveApprovalPolicy()
	}
	if flagSandboxType != "" {
		settings.SandboxType = resolveSandboxType()
	}
	if settings.PreciseTokenCounting != "" {
		compact.UsePreciseTokens(settings.PreciseTokenCounting)
	}

	if err := safety.LoadTrustedCommands(cwd); err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	eng := &engine{store: store, settings: settings, cwd: cwd}

	eng.registry = tools.NewRegistry()
	eng.exec = sandbox.NewExecutor()
	eng.gate = safety.NewGate(settings.ApprovalPolicy, protocol.SandboxPolicy{
		Kind: protocol.SandboxWorkspaceWrite, WritableRoots: []string{cwd},
	})
	eng.tracker = diffs.NewTurnDiffTracker()

	tools.RegisterBuiltins(eng.registry, tools.BuiltinWiring{
		Exec:    eng.exec,
		Gate:    eng.gate,
		Tracker: eng.tracker,
		FileIO:  osFileIO(),
		Approve: eng.approver,
		OnChunk: func(c sandbox.ExecStreamChunk) {
			seq := c.Sequence
			eng.emit(orchestrator.Event{
				Kind: orchestrator.EventExecCommandOutput, CallID: c.CallID,
				ExecChunk: &c, Order: orchestrator.Order{SequenceNumber: &seq},
			})
		},
		OnExecBegin: func(callID string, params sandbox.ExecParams) {
			eng.emit(orchestrator.Event{Kind: orchestrator.EventExecCommandBegin, CallID: callID, ExecParams: &params})
		},
		OnExecEnd: func(callID string, out sandbox.ExecToolCallOutput) {
			eng.emit(orchestrator.Event{Kind: orchestrator.EventExecCommandEnd, CallID: callID, ExecOutput: &out})
		},
		OnPatchBegin: func(callID string) {
			eng.emit(orchestrator.Event{Kind: orchestrator.EventPatchApplyBegin, CallID: callID})
		},
		OnPatchEnd: func(callID string, success bool, summary string) {
			eng.emit(orchestrator.Event{Kind: orchestrator.EventPatchApplyEnd, CallID: callID, Success: success, Summary: summary})
		},
		OnPlanUpdate: func(e tools.PlanUpdateEvent) {
			eng.emit(orchestrator.Event{Kind: orchestrator.EventPlanUpdate, Plan: &e})
		},
	})

	eng.gitMgr = git.NewManager(cwd)
	eng.agentPool = tools.NewAgentPool(eng.gitMgr, 4)
	tools.RegisterAgentTools(eng.registry, eng.agentPool)

	browserMgr := browser.NewBrowserManager(os.Getenv("TURNENGINE_BROWSER_URL"))
	browserTracker := browser.NewTracker(browserMgr)
	tools.RegisterBrowserTools(eng.registry, browserTracker)

	tools.RegisterCodeSearchTools(eng.registry)

	eng.client = streamclient.NewClient(config.ResolveBaseURL(), config.ResolveAPIKey())
	eng.toolDefs = builtinToolDefs()
	return eng, nil
}

// summarizerFor builds the model-backed checkpoint summarizer for sess,
// carrying its previous checkpoint into each new request.
func (e *engine) summarizerFor(sess func() string) compact.Summarizer {
	return compact.ModelSummarizer(e.client, e.settings.Model, sess)
}

// approver surfaces an approval request on the event stream, then asks on
// the terminal. Denials (and EOF on stdin) resolve as rejected.
func (e *engine) approver(ctx context.Context, kind, detail string) bool {
	evKind := orchestrator.EventExecApprovalRequest
	if kind == "patch" {
		evKind = orchestrator.EventPatchApprovalRequest
	}
	e.emit(orchestrator.Event{Kind: evKind, Summary: detail})

	fmt.Fprintf(os.Stderr, "approve %s?\n%s\n[y/N] ", kind, detail)
	var resp string
	fmt.Scanln(&resp)
	return resp == "y" || resp == "Y"
}

// environmentContext is the ambient context block sent with every prompt.
func environmentContext(cwd string) map[string]string {
	return map[string]string{
		"cwd":      cwd,
		"platform": runtime.GOOS,
	}
}

// osFileIO builds the diffs.FileIO backed by the real filesystem.
func osFileIO() diffs.FileIO {
	return diffs.FileIO{
		Read: func(path string) ([]byte, bool, error) {
			b, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, false, nil
				}
				return nil, false, err
			}
			return b, true, nil
		},
		Write: func(path string, content []byte) error {
			return os.WriteFile(path, content, 0644)
		},
		Remove: func(path string) error {
			return os.Remove(path)
		},
	}
}
