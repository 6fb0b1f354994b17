package rollout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/riftlab/turnengine/internal/compact"
	"github.com/riftlab/turnengine/internal/protocol"
)

func newTestMeta(t *testing.T, cwd string, ts time.Time) SessionMeta {
	t.Helper()
	return SessionMeta{
		ID:         protocol.NewConversationId(),
		Timestamp:  ts,
		Cwd:        cwd,
		Originator: "test",
		CLIVersion: "0.0.0-test",
		Source:     "CLI",
	}
}

func TestRolloutRoundTrip(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	cwd := t.TempDir()

	meta := newTestMeta(t, cwd, time.Now())
	rec, err := NewRecorder(meta)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	history := []protocol.ResponseItem{
		protocol.NewMessage("user", protocol.TextItem("fix the bug")),
		protocol.NewFunctionCall("c1", "shell", `{"command":["ls"]}`),
		protocol.NewFunctionCallOutput("c1", "ok", true),
		protocol.NewMessage("assistant", protocol.OutputText("done")),
	}
	for _, item := range history {
		rec.RecordItem(item)
	}
	if err := rec.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got, err := GetRolloutHistory(rec.Path())
	if err != nil {
		t.Fatalf("GetRolloutHistory: %v", err)
	}
	if got.Meta == nil || got.Meta.ID != meta.ID {
		t.Fatalf("round-trip lost the conversation id: %+v", got.Meta)
	}
	if len(got.Items) != len(history) {
		t.Fatalf("round-trip item count = %d, want %d", len(got.Items), len(history))
	}
	for i := range history {
		if got.Items[i].Type != history[i].Type || got.Items[i].Text() != history[i].Text() {
			t.Errorf("item %d differs: got %+v want %+v", i, got.Items[i], history[i])
		}
		if got.Items[i].CallID != history[i].CallID {
			t.Errorf("item %d call id differs: got %q want %q", i, got.Items[i].CallID, history[i].CallID)
		}
	}
}

func TestRolloutFirstLineIsSessionMeta(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	meta := newTestMeta(t, t.TempDir(), time.Now())
	rec, err := NewRecorder(meta)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("hello")))
	rec.Shutdown()

	data, err := os.ReadFile(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(string(data), "\n", 2)[0]
	if !strings.Contains(first, `"type":"session_meta"`) {
		t.Errorf("first line must be session_meta, got: %s", first)
	}
	if !strings.Contains(first, `"timestamp"`) || !strings.Contains(first, `"payload"`) {
		t.Errorf("line must carry timestamp and nested payload, got: %s", first)
	}
}

func TestRolloutEphemeralItemsFiltered(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	meta := newTestMeta(t, t.TempDir(), time.Now())
	rec, err := NewRecorder(meta)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.RecordItem(protocol.NewMessage("assistant")) // empty: dropped by policy
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("kept")))
	rec.Shutdown()

	got, err := GetRolloutHistory(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 1 || got.Items[0].Text() != "kept" {
		t.Errorf("persistence policy not applied, got %+v", got.Items)
	}
}

func TestResumeCollapsesAtCompactedLine(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	meta := newTestMeta(t, t.TempDir(), time.Now())
	rec, err := NewRecorder(meta)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("the goal")))
	rec.RecordItem(protocol.NewMessage("assistant", protocol.OutputText("step 1")))
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("step 2")))
	rec.RecordCompacted("work so far")
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("after checkpoint")))
	rec.Shutdown()

	got, err := GetRolloutHistory(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 3 {
		t.Fatalf("items = %d, want 3 (goal, checkpoint, post-checkpoint): %+v", len(got.Items), got.Items)
	}
	if got.Items[0].Text() != "the goal" {
		t.Errorf("goal not pinned: %+v", got.Items[0])
	}
	if !strings.HasPrefix(got.Items[1].Text(), compact.CheckpointPrefix) || !strings.Contains(got.Items[1].Text(), "work so far") {
		t.Errorf("checkpoint message wrong: %q", got.Items[1].Text())
	}
	if got.Items[2].Text() != "after checkpoint" {
		t.Errorf("post-checkpoint item lost: %+v", got.Items[2])
	}
}

func TestResumeSkipsUnknownRecordTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout-2026-01-02T03-04-05-00000000-0000-0000-0000-000000000001.jsonl")
	lines := []string{
		`{"timestamp":"2026-01-02T03:04:05.000Z","item":{"type":"session_meta","payload":{"id":"00000000-0000-0000-0000-000000000001","timestamp":"2026-01-02T03:04:05Z","cwd":"/w","originator":"test","cli_version":"x"}}}`,
		`{"timestamp":"2026-01-02T03:04:06.000Z","item":{"type":"hologram","payload":{"whatever":true}}}`,
		`{"timestamp":"2026-01-02T03:04:07.000Z","item":{"type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"hi"}]}}}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := GetRolloutHistory(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Meta == nil {
		t.Fatal("meta lost")
	}
	if len(got.Items) != 1 || got.Items[0].Text() != "hi" {
		t.Errorf("unknown record type must be skipped, items = %+v", got.Items)
	}
}

func TestParseRolloutFilename(t *testing.T) {
	f, ok := parseRolloutFilename("rollout-2026-01-02T03-04-05-6ba7b810-9dad-11d1-80b4-00c04fd430c8.jsonl")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if f.timestamp.Year() != 2026 || f.timestamp.Hour() != 3 {
		t.Errorf("timestamp = %v", f.timestamp)
	}
	if f.id.String() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("id = %s", f.id)
	}
	for _, bad := range []string{
		"rollout-garbage.jsonl",
		"notes.txt",
		"rollout-2026-01-02T03-04-05-not-a-uuid.jsonl",
	} {
		if _, ok := parseRolloutFilename(bad); ok {
			t.Errorf("parse of %q should fail", bad)
		}
	}
}

func TestGetConversationsOrderingAndPaging(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	cwd := t.TempDir()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var made []SessionMeta
	for i := 0; i < 5; i++ {
		meta := newTestMeta(t, cwd, base.Add(time.Duration(i)*time.Hour))
		rec, err := NewRecorder(meta)
		if err != nil {
			t.Fatalf("NewRecorder %d: %v", i, err)
		}
		rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("goal for session")))
		rec.Shutdown()
		made = append(made, meta)
	}

	full, err := GetConversations(10, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Items) != 5 {
		t.Fatalf("listed %d sessions, want 5", len(full.Items))
	}
	for i := 1; i < len(full.Items); i++ {
		prev, cur := full.Items[i-1], full.Items[i]
		if cur.Timestamp.After(prev.Timestamp) {
			t.Fatalf("listing not timestamp-descending at %d: %v then %v", i, prev.Timestamp, cur.Timestamp)
		}
		if cur.Timestamp.Equal(prev.Timestamp) && cur.ID.String() > prev.ID.String() {
			t.Fatalf("listing not id-descending within equal timestamps at %d", i)
		}
	}
	if full.Items[0].ID != made[4].ID {
		t.Errorf("newest session should list first")
	}

	// Paging across a boundary yields the same sequence as one big page.
	page1, err := GetConversations(2, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Items) != 2 || page1.NextCursor == nil {
		t.Fatalf("page1 = %d items, cursor %v", len(page1.Items), page1.NextCursor)
	}
	page2, err := GetConversations(10, page1.NextCursor, nil)
	if err != nil {
		t.Fatal(err)
	}
	var paged []string
	for _, it := range append(page1.Items, page2.Items...) {
		paged = append(paged, it.ID.String())
	}
	var whole []string
	for _, it := range full.Items {
		whole = append(whole, it.ID.String())
	}
	if strings.Join(paged, ",") != strings.Join(whole, ",") {
		t.Errorf("paged sequence %v != single-call sequence %v", paged, whole)
	}
}

func TestGetConversationsFiltersSources(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	cwd := t.TempDir()

	meta := newTestMeta(t, cwd, time.Now())
	meta.Source = "Exec"
	rec, err := NewRecorder(meta)
	if err != nil {
		t.Fatal(err)
	}
	rec.Shutdown()

	page, err := GetConversations(10, nil, []string{"CLI"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Errorf("source filter leaked %d items", len(page.Items))
	}
	page, err = GetConversations(10, nil, []string{"Exec"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Errorf("want the Exec session listed, got %d", len(page.Items))
	}
}

func TestDirIndexAggregation(t *testing.T) {
	t.Setenv("CODEX_HOME", t.TempDir())
	cwd := t.TempDir()

	meta := newTestMeta(t, cwd, time.Now())
	rec, err := NewRecorder(meta)
	if err != nil {
		t.Fatal(err)
	}
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("first ask")))
	rec.RecordItem(protocol.NewMessage("assistant", protocol.OutputText("answer")))
	rec.RecordItem(protocol.NewMessage("user", protocol.TextItem("second ask\nwith newline")))
	rec.Shutdown()

	entries, err := ReadDirIndex(cwd)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3 (summed deltas)", e.MessageCount)
	}
	if e.LastUserSnippet != "second ask with newline" {
		t.Errorf("LastUserSnippet = %q, newlines must become spaces and the latest user message wins", e.LastUserSnippet)
	}
	if e.SessionFile != rec.Path() {
		t.Errorf("SessionFile = %q, want %q", e.SessionFile, rec.Path())
	}
}

func TestTruncateSnippet(t *testing.T) {
	long := strings.Repeat("ab", MaxSnippetLen)
	got := truncateSnippet(long)
	if len([]rune(got)) != MaxSnippetLen+1 {
		t.Errorf("truncated length = %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("want trailing ellipsis, got %q", got)
	}
}
