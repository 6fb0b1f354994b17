package autodrive

import (
	"strings"
	"testing"
	"time"
)

func TestAutoRestartDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
		{6, 120 * time.Second},
		{7, 120 * time.Second},
	}
	for _, c := range cases {
		if got := AutoRestartDelay(c.attempt); got != c.want {
			t.Errorf("AutoRestartDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestTruncateErrorMessage(t *testing.T) {
	short := "connection reset"
	if got := TruncateErrorMessage(short); got != short {
		t.Errorf("short message should pass through unchanged, got %q", got)
	}

	long := strings.Repeat("x", 200)
	got := TruncateErrorMessage(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated message should end in ellipsis, got %q", got)
	}
	if len(got) != errorMessageTruncateLen+3 {
		t.Errorf("truncated message length = %d, want %d", len(got), errorMessageTruncateLen+3)
	}
}

func TestContinueModeCycle(t *testing.T) {
	m := ContinueImmediate
	order := []ContinueMode{Continue10s, Continue60s, ContinueManual, ContinueImmediate}
	for _, want := range order {
		m = m.CycleForward()
		if m != want {
			t.Fatalf("CycleForward landed on %v, want %v", m, want)
		}
	}
	m = ContinueImmediate.CycleBackward()
	if m != ContinueManual {
		t.Errorf("CycleBackward from Immediate = %v, want Manual", m)
	}
}

func TestPauseForTransientFailureStopsAfterMaxAttempts(t *testing.T) {
	c := NewController()
	c.Start("do the thing", Knobs{}, ContinueImmediate)

	var lastEffects []Effect
	for i := 0; i < AutoRestartMaxAttempts; i++ {
		lastEffects = c.PauseForTransientFailure("network blip")
		if c.State() == StateStopped {
			t.Fatalf("stopped too early, at attempt %d", i+1)
		}
	}

	lastEffects = c.PauseForTransientFailure("network blip")
	if c.State() != StateStopped {
		t.Fatalf("expected StateStopped after exceeding max attempts, got %v", c.State())
	}
	foundStop := false
	for _, e := range lastEffects {
		if e.Kind == EffectStopCompleted {
			foundStop = true
		}
	}
	if !foundStop {
		t.Errorf("expected a StopCompleted effect, got %v", lastEffects)
	}
}

func TestHandleCountdownTickIgnoresStaleID(t *testing.T) {
	c := NewController()
	c.Start("goal", Knobs{}, Continue10s)
	effects := c.LaunchSucceeded()

	var countdownID int
	for _, e := range effects {
		if e.Kind == EffectStartCountdown {
			countdownID = e.CountdownID
		}
	}
	if countdownID == 0 {
		t.Fatalf("expected a StartCountdown effect, got %v", effects)
	}

	if got := c.HandleCountdownTick(countdownID-1, 5); got != nil {
		t.Errorf("stale countdown tick should be ignored, got %v", got)
	}

	got := c.HandleCountdownTick(countdownID, 0)
	found := false
	for _, e := range got {
		if e.Kind == EffectSubmitPrompt && e.Prompt == "goal" {
			found = true
		}
	}
	if !found {
		t.Errorf("expired countdown should submit the goal prompt, got %v", got)
	}
}

func TestObserverToolsByTrigger(t *testing.T) {
	activity := ObserverTools(TriggerActivity, true)
	for _, forbidden := range []string{"assist_core", "pro_submit_user"} {
		for _, got := range activity {
			if got == forbidden {
				t.Errorf("activity trigger should never offer %q, got %v", forbidden, activity)
			}
		}
	}

	turnEnd := ObserverTools(TriggerTurnEnd, false)
	hasAssist := false
	hasSubmitUser := false
	for _, got := range turnEnd {
		if got == "assist_core" {
			hasAssist = true
		}
		if got == "pro_submit_user" {
			hasSubmitUser = true
		}
	}
	if !hasAssist {
		t.Errorf("non-activity trigger should offer assist_core, got %v", turnEnd)
	}
	if hasSubmitUser {
		t.Errorf("pro_submit_user should only appear when autonomous, got %v", turnEnd)
	}

	autonomous := ObserverTools(TriggerTurnEnd, true)
	hasSubmitUser = false
	for _, got := range autonomous {
		if got == "pro_submit_user" {
			hasSubmitUser = true
		}
	}
	if !hasSubmitUser {
		t.Errorf("autonomous non-activity trigger should offer pro_submit_user, got %v", autonomous)
	}
}
