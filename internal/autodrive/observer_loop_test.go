package autodrive

import (
	"strings"
	"testing"

	"github.com/riftlab/turnengine/internal/compact"
	"github.com/riftlab/turnengine/internal/protocol"
)

func TestTrimToTokenBudgetKeepsMostRecent(t *testing.T) {
	big := strings.Repeat("x", 400) // 100 tokens
	items := []protocol.ResponseItem{
		protocol.NewMessage("user", protocol.TextItem(big)),
		protocol.NewMessage("assistant", protocol.TextItem(big)),
		protocol.NewMessage("user", protocol.TextItem("recent")),
	}
	trimmed := trimToTokenBudget(items, 110)
	if len(trimmed) != 2 {
		t.Fatalf("trimmed to %d items, want 2", len(trimmed))
	}
	if trimmed[len(trimmed)-1].Text() != "recent" {
		t.Errorf("most recent item must survive trimming")
	}
	if compact.EstimateHistoryTokens(trimmed) > 110 {
		t.Errorf("trimmed history still over budget")
	}
}

func TestTrimToTokenBudgetZeroBudget(t *testing.T) {
	items := []protocol.ResponseItem{protocol.NewMessage("user", protocol.TextItem("x"))}
	if got := trimToTokenBudget(items, 0); len(got) != 0 {
		t.Errorf("zero budget must yield no items, got %d", len(got))
	}
}

func TestComputeTokenBudgetShares(t *testing.T) {
	b := ComputeTokenBudget(100_000)
	if b.TranscriptTokens != 40_000 {
		t.Errorf("TranscriptTokens = %d, want 40000 (40%%)", b.TranscriptTokens)
	}
	if b.OwnLogTokens != 10_000 {
		t.Errorf("OwnLogTokens = %d, want 10000 (10%%)", b.OwnLogTokens)
	}
}

func TestActionForCallMapsToolNames(t *testing.T) {
	offered := ObserverTools(TriggerTurnEnd, true)
	cases := []struct {
		name string
		args string
		want ObserverActionKind
		text string
	}{
		{"pro_recommend", `{"text":"slow down"}`, ObserverRecommend, "slow down"},
		{"assist_core", `{"text":"note"}`, ObserverDeveloperNote, "note"},
		{"pro_submit_user", `{"text":"continue"}`, ObserverSubmitUser, "continue"},
		{"wait", `{}`, ObserverWait, ""},
	}
	for _, c := range cases {
		item := protocol.NewFunctionCall("c1", c.name, c.args)
		action, ok := actionForCall(item, offered)
		if !ok {
			t.Fatalf("%s: expected an action", c.name)
		}
		if action.Kind != c.want {
			t.Errorf("%s: kind = %v, want %v", c.name, action.Kind, c.want)
		}
		if action.Text != c.text {
			t.Errorf("%s: text = %q, want %q", c.name, action.Text, c.text)
		}
	}
}

func TestActionForCallDropsUnofferedTools(t *testing.T) {
	// An "activity" trigger never offers pro_submit_user, even when the
	// model calls it anyway.
	offered := ObserverTools(TriggerActivity, true)
	item := protocol.NewFunctionCall("c1", "pro_submit_user", `{"text":"sneaky"}`)
	if _, ok := actionForCall(item, offered); ok {
		t.Error("a tool the trigger did not offer must be dropped")
	}
}
