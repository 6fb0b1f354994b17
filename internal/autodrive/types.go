// Package autodrive implements the opt-in "auto-drive" loop: a state
// machine that, once given a goal, auto-submits the next prompt after each
// turn on a configurable countdown and recovers from transient streaming
// failures with exponential backoff — plus the observer, a secondary model
// loop that reviews the primary transcript and is handed a bounded tool
// set depending on what triggered it. The controller emits side-effect
// descriptors rather than performing I/O, so hosts without a terminal can
// interpret them however they like.
package autodrive

import "time"

// ContinueMode controls how long the controller waits after a turn
// completes before auto-submitting the next prompt.
type ContinueMode int

const (
	ContinueImmediate ContinueMode = iota
	Continue10s
	Continue60s
	ContinueManual
)

func (m ContinueMode) String() string {
	switch m {
	case ContinueImmediate:
		return "immediate"
	case Continue10s:
		return "10s"
	case Continue60s:
		return "60s"
	case ContinueManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Delay returns how long to wait before auto-submitting, or 0 for
// Immediate. ContinueManual never auto-submits; callers must check it
// separately.
func (m ContinueMode) Delay() time.Duration {
	switch m {
	case Continue10s:
		return 10 * time.Second
	case Continue60s:
		return 60 * time.Second
	default:
		return 0
	}
}

// cycleOrder is the fixed rotation cycle_forward/cycle_backward step through.
var cycleOrder = []ContinueMode{ContinueImmediate, Continue10s, Continue60s, ContinueManual}

// CycleForward advances to the next mode, wrapping Manual back to Immediate.
func (m ContinueMode) CycleForward() ContinueMode {
	for i, c := range cycleOrder {
		if c == m {
			return cycleOrder[(i+1)%len(cycleOrder)]
		}
	}
	return ContinueImmediate
}

// CycleBackward retreats to the previous mode, wrapping Immediate back to Manual.
func (m ContinueMode) CycleBackward() ContinueMode {
	for i, c := range cycleOrder {
		if c == m {
			return cycleOrder[(i-1+len(cycleOrder))%len(cycleOrder)]
		}
	}
	return ContinueImmediate
}

// RunState is the controller's coarse lifecycle state.
type RunState int

const (
	StateIdle RunState = iota
	StateLaunching
	StateRunning
	StatePausedTransient
	StateAwaitingCountdown
	StateStopped
)

// Knobs are the observer behavior toggles the UI can set when starting a run.
type Knobs struct {
	Review       bool
	Subagents    bool
	CrossCheck   bool
	QAAutomation bool
	Autonomous   bool
}

// EffectKind discriminates one Effect the controller emits for the UI to act on.
type EffectKind string

const (
	EffectRefreshUI        EffectKind = "refresh_ui"
	EffectStartCountdown   EffectKind = "start_countdown"
	EffectSubmitPrompt     EffectKind = "submit_prompt"
	EffectLaunchStarted    EffectKind = "launch_started"
	EffectLaunchFailed     EffectKind = "launch_failed"
	EffectTransientPause   EffectKind = "transient_pause"
	EffectScheduleRestart  EffectKind = "schedule_restart"
	EffectCancelCoordinator EffectKind = "cancel_coordinator"
	EffectResetHistory     EffectKind = "reset_history"
	EffectStopCompleted    EffectKind = "stop_completed"
)

// Effect is one action the controller asks its caller to perform.
type Effect struct {
	Kind EffectKind

	CountdownID int
	Seconds     int

	Prompt string

	Attempt int
	Delay   time.Duration
	Reason  string

	RestartToken int

	Summary string
}

// AutoRestartState tracks the transient-failure backoff bookkeeping.
type AutoRestartState struct {
	Attempts     int
	RestartToken int
}

// AutoRestartMaxAttempts is the number of consecutive transient failures
// tolerated before the run is stopped outright.
const AutoRestartMaxAttempts = 6

// AutoRestartDelay computes the exponential backoff for the given attempt
// number (1-indexed): min(5 * 2^(attempt-1), 120) seconds, with attempt==0
// special-cased to the base delay rather than producing a fractional
// exponent.
func AutoRestartDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 5 * time.Second
	}
	secs := 5 << uint(attempt-1)
	if secs > 120 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}

const errorMessageTruncateLen = 160

// TruncateErrorMessage caps msg to 160 characters, appending an ellipsis
// when truncated, matching the controller's surfaced TransientPause reason.
func TruncateErrorMessage(msg string) string {
	if len(msg) <= errorMessageTruncateLen {
		return msg
	}
	return msg[:errorMessageTruncateLen] + "..."
}
