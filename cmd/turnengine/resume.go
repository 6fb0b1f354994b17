package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/orchestrator"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <rollout-path>",
	Short: "Resume a prior session from its rollout file and continue the REPL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResume(cmd, args[0])
	},
}

func runResume(cmd *cobra.Command, path string) error {
	initial, err := rollout.GetRolloutHistory(path)
	if err != nil {
		return fmt.Errorf("load rollout: %w", err)
	}

	eng, err := newEngine()
	if err != nil {
		return err
	}

	// The resumed conversation keeps its id; its continuation is recorded
	// to a fresh rollout file rather than appending to the original.
	meta := rollout.SessionMeta{
		ID:         protocol.NewConversationId(),
		Timestamp:  time.Now(),
		Cwd:        eng.cwd,
		Originator: "turnengine",
		CLIVersion: version,
		Source:     "CLI",
		Model:      eng.settings.Model,
	}
	if initial.Meta != nil {
		meta.ID = initial.Meta.ID
	}
	recorder, err := rollout.NewRecorder(meta)
	if err != nil {
		return fmt.Errorf("rollout recorder: %w", err)
	}
	defer recorder.Shutdown()

	cfg := eng.sessionConfig(recorder, printSink, "")
	var sess *orchestrator.Session
	cfg.Summarize = eng.summarizerFor(func() string {
		if sess == nil {
			return ""
		}
		return sess.PrevSummary()
	})
	sess = orchestrator.Resume(cfg, initial)

	fmt.Printf("resumed session %s with %d prior items\n", sess.ID, len(sess.History()))
	return runREPLOnSession(cmd.Context(), sess)
}
