package autodrive

import (
	"fmt"
	"sync"
)

// Controller is the auto-drive state machine. At most one runs per
// process; the host serializes access to it.
type Controller struct {
	mu sync.Mutex

	goal  string
	knobs Knobs
	mode  ContinueMode

	state       RunState
	countdownID int
	restart     AutoRestartState
}

// NewController builds an idle controller; Start activates it with a goal.
func NewController() *Controller {
	return &Controller{mode: ContinueImmediate, state: StateIdle}
}

// Start activates the loop with a goal and initial knobs, emitting the
// effects that kick off the first launch.
func (c *Controller) Start(goal string, knobs Knobs, mode ContinueMode) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goal = goal
	c.knobs = knobs
	c.mode = mode
	c.state = StateLaunching
	c.restart = AutoRestartState{}
	return []Effect{{Kind: EffectRefreshUI}, {Kind: EffectLaunchStarted}}
}

// PrepareLaunch transitions from a countdown/paused state back into
// launching, immediately before the orchestrator submits the next prompt.
func (c *Controller) PrepareLaunch() []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateLaunching
	return []Effect{{Kind: EffectLaunchStarted}}
}

// LaunchSucceeded records a successful turn launch and resets the transient
// restart counter, then schedules the next countdown (or immediate submit)
// per the current continue mode.
func (c *Controller) LaunchSucceeded() []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restart = AutoRestartState{}
	c.state = StateRunning
	return c.scheduleNextLocked()
}

// LaunchFailed records a launch failure. Non-transient failures stop the
// run outright; transient ones are routed through PauseForTransientFailure
// by the caller.
func (c *Controller) LaunchFailed(reason string) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateStopped
	return []Effect{{Kind: EffectLaunchFailed, Reason: TruncateErrorMessage(reason)}, {Kind: EffectStopCompleted, Summary: reason}}
}

// PauseForTransientFailure handles a network/streaming error: increments
// the attempt counter, computes the next backoff delay, and either
// schedules a restart or stops the run once AutoRestartMaxAttempts is
// exceeded.
func (c *Controller) PauseForTransientFailure(reason string) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.restart.Attempts++
	reason = TruncateErrorMessage(reason)

	if c.restart.Attempts > AutoRestartMaxAttempts {
		c.state = StateStopped
		summary := fmt.Sprintf("stopped after %d transient failures: %s", c.restart.Attempts-1, reason)
		return []Effect{{Kind: EffectStopCompleted, Summary: summary}}
	}

	c.state = StatePausedTransient
	c.restart.RestartToken++
	delay := AutoRestartDelay(c.restart.Attempts)
	return []Effect{
		{Kind: EffectTransientPause, Attempt: c.restart.Attempts, Delay: delay, Reason: reason},
		{Kind: EffectScheduleRestart, RestartToken: c.restart.RestartToken, Attempt: c.restart.Attempts, Delay: delay},
	}
}

// StopRun ends the loop immediately, e.g. on explicit user cancellation.
func (c *Controller) StopRun(summary string) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateStopped
	return []Effect{{Kind: EffectCancelCoordinator}, {Kind: EffectStopCompleted, Summary: summary}}
}

// ScheduleCLIPrompt queues the next SubmitPrompt effect directly, bypassing
// the countdown — used when the UI explicitly asks to continue now.
func (c *Controller) ScheduleCLIPrompt(prompt string) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateLaunching
	return []Effect{{Kind: EffectSubmitPrompt, Prompt: prompt}}
}

// UpdateContinueMode changes the active continue mode; callers typically
// drive this from CycleForward/CycleBackward on the current mode.
func (c *Controller) UpdateContinueMode(mode ContinueMode) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return []Effect{{Kind: EffectRefreshUI}}
}

// HandleCountdownTick processes a countdown tick. Ticks referencing a stale
// countdownID (not the one currently outstanding) are ignored, so a timer
// that fires late can never double-submit.
func (c *Controller) HandleCountdownTick(countdownID, secondsRemaining int) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	if countdownID != c.countdownID {
		return nil
	}
	if secondsRemaining > 0 {
		return []Effect{{Kind: EffectStartCountdown, CountdownID: countdownID, Seconds: secondsRemaining}}
	}
	c.state = StateLaunching
	return []Effect{{Kind: EffectSubmitPrompt, Prompt: c.goal}}
}

// Reset returns the controller to its idle state, discarding the goal and
// restart bookkeeping.
func (c *Controller) Reset() []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goal = ""
	c.state = StateIdle
	c.restart = AutoRestartState{}
	c.countdownID = 0
	return []Effect{{Kind: EffectResetHistory}, {Kind: EffectRefreshUI}}
}

// State returns the controller's current coarse state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Knobs returns a copy of the currently active observer knobs.
func (c *Controller) Knobs() Knobs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.knobs
}

func (c *Controller) scheduleNextLocked() []Effect {
	if c.mode == ContinueManual {
		c.state = StateAwaitingCountdown
		return []Effect{{Kind: EffectRefreshUI}}
	}
	delay := c.mode.Delay()
	if delay == 0 {
		c.state = StateLaunching
		return []Effect{{Kind: EffectSubmitPrompt, Prompt: c.goal}}
	}
	c.countdownID++
	c.state = StateAwaitingCountdown
	return []Effect{{Kind: EffectStartCountdown, CountdownID: c.countdownID, Seconds: int(delay.Seconds())}}
}
