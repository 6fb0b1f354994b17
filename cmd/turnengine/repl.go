package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/riftlab/turnengine/internal/orchestrator"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
)

// runREPL drives the default interactive loop: read a line of input, submit
// it as a turn, print the streamed events, repeat.
func runREPL(ctx context.Context, systemPrompt string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	meta := rollout.SessionMeta{
		ID:         protocol.NewConversationId(),
		Timestamp:  time.Now(),
		Cwd:        eng.cwd,
		Originator: "turnengine",
		CLIVersion: version,
		Source:     "CLI",
		Model:      eng.settings.Model,
	}
	recorder, err := rollout.NewRecorder(meta)
	if err != nil {
		return fmt.Errorf("rollout recorder: %w", err)
	}
	defer recorder.Shutdown()

	cfg := eng.sessionConfig(recorder, printSink, systemPrompt)
	var sess *orchestrator.Session
	cfg.Summarize = eng.summarizerFor(func() string {
		if sess == nil {
			return ""
		}
		return sess.PrevSummary()
	})
	sess = orchestrator.NewSession(cfg)

	maybeShowUpgradeBanner()
	fmt.Fprintf(os.Stderr, "turnengine session %s in %s\n", sess.ID, eng.cwd)
	return runREPLOnSession(ctx, sess)
}

// runREPLOnSession drives the read-eval-print loop against an
// already-constructed Session, shared by the default command and resume.
// Ctrl-C aborts the in-flight turn: the stream drops, tool tasks observe
// the cancellation, and exec children are killed via the process-group
// guard; the deferred recorder shutdown then flushes the rollout.
func runREPLOnSession(ctx context.Context, sess *orchestrator.Session) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			sess.Abort()
		}
	}()

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 64*1024), 1024*1024)

	if interactive {
		fmt.Fprint(os.Stderr, "> ")
	}
	for reader.Scan() {
		line := reader.Text()
		if line == "" {
			if interactive {
				fmt.Fprint(os.Stderr, "> ")
			}
			continue
		}
		if err := sess.SubmitUserMessage(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "turn error: %v\n", err)
		}
		if interactive {
			fmt.Fprint(os.Stderr, "> ")
		}
	}
	return reader.Err()
}

func printSink(e orchestrator.Event) {
	switch e.Kind {
	case orchestrator.EventAgentMessageDelta:
		fmt.Print(e.Delta)
	case orchestrator.EventReasoningDelta, orchestrator.EventReasoningSummaryDelta:
		fmt.Fprint(os.Stderr, e.Delta)
	case orchestrator.EventAgentMessage:
		fmt.Println()
	case orchestrator.EventExecCommandBegin:
		if e.ExecParams != nil {
			fmt.Fprintf(os.Stderr, "$ %v\n", e.ExecParams.Command)
		}
	case orchestrator.EventExecCommandOutput:
		if e.ExecChunk != nil {
			os.Stderr.Write(e.ExecChunk.Bytes)
		}
	case orchestrator.EventExecCommandEnd:
		if e.ExecOutput != nil {
			fmt.Fprintf(os.Stderr, "[exit %d]\n", e.ExecOutput.ExitCode)
		}
	case orchestrator.EventPatchApplyEnd:
		fmt.Fprintf(os.Stderr, "[patch %s] %s\n", boolStr(e.Success), e.Summary)
	case orchestrator.EventPlanUpdate:
		if e.Plan != nil {
			fmt.Fprintf(os.Stderr, "[plan] %d steps\n", len(e.Plan.Plan))
		}
	case orchestrator.EventTokenCount:
		fmt.Fprintf(os.Stderr, "[tokens %d]\n", e.TokensUsed)
	case orchestrator.EventCompacted:
		fmt.Fprintln(os.Stderr, "[history compacted]")
	case orchestrator.EventTurnAborted:
		fmt.Fprintf(os.Stderr, "[aborted %s]\n", e.Reason)
	case orchestrator.EventTaskComplete:
		fmt.Println()
	}
}

func boolStr(b bool) string {
	if b {
		return "ok"
	}
	return "failed"
}

// maybeShowUpgradeBanner prints the upgrade hint when SHOW_UPGRADE forces
// it; the wording depends on whether this install is npm-managed.
func maybeShowUpgradeBanner() {
	if os.Getenv("SHOW_UPGRADE") == "" {
		return
	}
	if os.Getenv("CODEX_MANAGED_BY_NPM") != "" {
		fmt.Fprintln(os.Stderr, "upgrade available: npm install -g turnengine")
		return
	}
	fmt.Fprintln(os.Stderr, "upgrade available: see the release page")
}

// version is stamped by the build, defaulting to a dev marker.
var version = "dev"
