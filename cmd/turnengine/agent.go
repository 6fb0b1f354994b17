package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/orchestrator"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
)

var agentPromptFlag string

// agentCmd is the peer-agent entry point tools.AgentPool launches for
// agent_run: a single non-interactive submission whose live output and
// final result are multiplexed over a yamux session carried on the
// process's own stdin/stdout pipe. Not meant for direct interactive use.
var agentCmd = &cobra.Command{
	Use:    "agent",
	Short:  "Run one non-interactive turn as a peer agent (internal; invoked by agent_run)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeerAgent(cmd.Context(), agentPromptFlag)
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentPromptFlag, "prompt", "", "prompt for this peer agent to run")
}

// peerResult is the control-channel payload written once this process's
// turn loop finishes; its JSON shape must match tools.peerResult exactly,
// since the two packages can't share the type (cmd/turnengine isn't
// importable from internal/tools).
type peerResult struct {
	Output  string `json:"output"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// stdioConn adapts this process's own stdin/stdout pipe into the
// io.ReadWriteCloser yamux.Server needs.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConn) Close() error                { return nil }

func runPeerAgent(ctx context.Context, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("agent: --prompt is required")
	}

	eng, err := newEngine()
	if err != nil {
		return err
	}

	session, err := yamux.Server(stdioConn{}, nil)
	if err != nil {
		return fmt.Errorf("yamux server: %w", err)
	}
	defer session.Close()

	outStream, err := session.AcceptStream()
	if err != nil {
		return fmt.Errorf("accept output stream: %w", err)
	}
	ctlStream, err := session.AcceptStream()
	if err != nil {
		return fmt.Errorf("accept control stream: %w", err)
	}

	meta := rollout.SessionMeta{
		ID:         protocol.NewConversationId(),
		Timestamp:  time.Now(),
		Cwd:        eng.cwd,
		Originator: "turnengine-agent",
		CLIVersion: version,
		Source:     "Exec",
		Model:      eng.settings.Model,
	}
	recorder, err := rollout.NewRecorder(meta)
	if err != nil {
		return fmt.Errorf("rollout recorder: %w", err)
	}
	defer recorder.Shutdown()

	cfg := eng.sessionConfig(recorder, func(e orchestrator.Event) {
		if e.Kind == orchestrator.EventAgentMessageDelta || e.Kind == orchestrator.EventReasoningDelta {
			_, _ = outStream.Write([]byte(e.Delta))
		}
	}, "")
	sess := orchestrator.NewSession(cfg)

	result := peerResult{Success: true}
	if runErr := sess.SubmitUserMessage(ctx, prompt); runErr != nil {
		result.Success = false
		result.Error = runErr.Error()
	}
	result.Output = finalAssistantText(sess.History())

	encodeErr := json.NewEncoder(ctlStream).Encode(result)
	_ = outStream.Close()
	_ = ctlStream.Close()
	return encodeErr
}

// finalAssistantText returns the last assistant message's text, the result
// a peer agent reports back to the session that launched it.
func finalAssistantText(history []protocol.ResponseItem) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type == protocol.ItemMessage && history[i].Role == "assistant" {
			return history[i].Text()
		}
	}
	return ""
}
