package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/autodrive"
	"github.com/riftlab/turnengine/internal/orchestrator"
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/rollout"
	"github.com/riftlab/turnengine/internal/streamclient"
)

var (
	driveGoal       string
	driveMode       string
	driveAutonomous bool
	driveMaxTurns   int
	driveWindow     int
)

// driveCmd runs the auto-drive loop non-interactively: the controller
// decides when the next prompt goes in (immediately, after a countdown, or
// after a backoff pause following a transient failure), and the observer
// reviews the transcript after each turn. The controller itself is a pure
// state machine; this command is the host that interprets its effects.
var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Run a goal on auto-drive: auto-submit follow-up prompts until done or stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		if driveGoal == "" {
			return fmt.Errorf("drive: --goal is required")
		}
		return runDrive(cmd.Context())
	},
}

func init() {
	driveCmd.Flags().StringVar(&driveGoal, "goal", "", "goal prompt to pursue")
	driveCmd.Flags().StringVar(&driveMode, "continue", "immediate", "continue mode: immediate|10s|60s")
	driveCmd.Flags().BoolVar(&driveAutonomous, "autonomous", false, "let the observer submit follow-up user messages")
	driveCmd.Flags().IntVar(&driveMaxTurns, "max-turns", 20, "stop after this many auto-submitted turns")
	driveCmd.Flags().IntVar(&driveWindow, "context-window", 200_000, "model context window used for the observer's token budget")
	rootCmd.AddCommand(driveCmd)
}

func continueModeFromFlag(s string) autodrive.ContinueMode {
	switch s {
	case "10s":
		return autodrive.Continue10s
	case "60s":
		return autodrive.Continue60s
	case "manual":
		return autodrive.ContinueManual
	default:
		return autodrive.ContinueImmediate
	}
}

func runDrive(ctx context.Context) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	meta := rollout.SessionMeta{
		ID:         protocol.NewConversationId(),
		Timestamp:  time.Now(),
		Cwd:        eng.cwd,
		Originator: "turnengine-drive",
		CLIVersion: version,
		Source:     "CLI",
		Model:      eng.settings.Model,
		Instructions: driveGoal,
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
	sess = orchestrator.NewSession(cfg)

	controller := autodrive.NewController()
	observer := &autodrive.Observer{
		Client:        eng.client,
		Model:         eng.settings.Model,
		ContextWindow: driveWindow,
		Autonomous:    driveAutonomous,
	}

	knobs := autodrive.Knobs{Autonomous: driveAutonomous}
	pending := controller.Start(driveGoal, knobs, continueModeFromFlag(driveMode))
	// The first launch is the goal itself.
	pending = append(pending, autodrive.Effect{Kind: autodrive.EffectSubmitPrompt, Prompt: driveGoal})

	turns := 0
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		effect := pending[0]
		pending = pending[1:]

		switch effect.Kind {
		case autodrive.EffectSubmitPrompt:
			if turns >= driveMaxTurns {
				pending = controller.StopRun(fmt.Sprintf("reached max turns (%d)", driveMaxTurns))
				continue
			}
			turns++
			err := sess.SubmitUserMessage(ctx, effect.Prompt)
			switch {
			case err == nil:
				runObserver(ctx, observer, sess, driveGoal, &pending)
				pending = append(pending, controller.LaunchSucceeded()...)
			case isTransient(err):
				pending = append(pending, controller.PauseForTransientFailure(err.Error())...)
			default:
				pending = append(pending, controller.LaunchFailed(err.Error())...)
			}

		case autodrive.EffectStartCountdown:
			sleepCtx(ctx, time.Duration(effect.Seconds)*time.Second)
			pending = append(pending, controller.HandleCountdownTick(effect.CountdownID, 0)...)

		case autodrive.EffectScheduleRestart:
			fmt.Fprintf(os.Stderr, "[auto-drive] transient failure, retry %d in %s\n", effect.Attempt, effect.Delay)
			sleepCtx(ctx, effect.Delay)
			pending = append(pending, controller.PrepareLaunch()...)
			pending = append(pending, autodrive.Effect{Kind: autodrive.EffectSubmitPrompt, Prompt: driveGoal})

		case autodrive.EffectStopCompleted:
			fmt.Fprintf(os.Stderr, "[auto-drive] stopped: %s\n", effect.Summary)
			return nil

		case autodrive.EffectTransientPause:
			fmt.Fprintf(os.Stderr, "[auto-drive] pausing: %s\n", effect.Reason)

		case autodrive.EffectLaunchFailed:
			fmt.Fprintf(os.Stderr, "[auto-drive] launch failed: %s\n", effect.Reason)

		case autodrive.EffectRefreshUI, autodrive.EffectLaunchStarted,
			autodrive.EffectCancelCoordinator, autodrive.EffectResetHistory:
			// Presentation-only in this host.
		}

		// Manual mode parks the controller with no further effects; in a
		// non-interactive host that means the run is over.
		if len(pending) == 0 && controller.State() == autodrive.StateAwaitingCountdown {
			pending = controller.StopRun("manual continue mode: nothing further to do")
		}
	}
	return nil
}

// runObserver gives the observer one look at the transcript after a turn;
// its actions feed back into the effect queue or the session.
func runObserver(ctx context.Context, obs *autodrive.Observer, sess *orchestrator.Session, goal string, pending *[]autodrive.Effect) {
	actions, err := obs.Observe(ctx, autodrive.TriggerTurnEnd, goal, sess.History())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[observer] error: %v\n", err)
		return
	}
	for _, a := range actions {
		switch a.Kind {
		case autodrive.ObserverRecommend:
			fmt.Fprintf(os.Stderr, "[observer] recommends: %s\n", a.Text)
		case autodrive.ObserverDeveloperNote:
			sess.InjectDeveloperNote(a.Text)
		case autodrive.ObserverSubmitUser:
			*pending = append(*pending, autodrive.Effect{Kind: autodrive.EffectSubmitPrompt, Prompt: a.Text})
		case autodrive.ObserverAgentRun:
			fmt.Fprintf(os.Stderr, "[observer] delegating: %s\n", a.Text)
		case autodrive.ObserverWait:
		}
	}
}

func isTransient(err error) bool {
	var te *streamclient.TransportError
	return errors.As(err, &te)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
