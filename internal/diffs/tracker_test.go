package diffs

import (
	"strings"
	"testing"

	"github.com/riftlab/turnengine/internal/protocol"
)

func readerFor(files map[string]string) func(path string) ([]byte, bool, error) {
	return func(path string) ([]byte, bool, error) {
		content, ok := files[path]
		if !ok {
			return nil, false, nil
		}
		return []byte(content), true, nil
	}
}

func TestTrackerBaselineCapturedOncePerTurn(t *testing.T) {
	files := map[string]string{"a.txt": "v1\n"}
	tr := NewTurnDiffTracker()

	patch := protocol.Patch{"a.txt": {Kind: protocol.FileUpdate, UnifiedDiff: "@@\n-v1\n+v2"}}
	if err := tr.OnPatchBegin(patch, readerFor(files)); err != nil {
		t.Fatal(err)
	}
	files["a.txt"] = "v2\n"

	// A second patch in the same turn must keep diffing against v1.
	if err := tr.OnPatchBegin(patch, readerFor(files)); err != nil {
		t.Fatal(err)
	}
	files["a.txt"] = "v3\n"

	diff, err := tr.GetUnifiedDiff(readerFor(files))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "-v1") || !strings.Contains(diff, "+v3") {
		t.Errorf("diff must span baseline v1 to current v3:\n%s", diff)
	}
	if strings.Contains(diff, "v2") {
		t.Errorf("intermediate content must not appear in the consolidated diff:\n%s", diff)
	}
}

func TestTrackerAdditionGetsNewFileHeader(t *testing.T) {
	files := map[string]string{}
	tr := NewTurnDiffTracker()
	patch := protocol.Patch{"fresh.txt": {Kind: protocol.FileAdd, Content: "hello\n"}}
	if err := tr.OnPatchBegin(patch, readerFor(files)); err != nil {
		t.Fatal(err)
	}
	files["fresh.txt"] = "hello\n"

	diff, err := tr.GetUnifiedDiff(readerFor(files))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "new file mode 100644") {
		t.Errorf("missing new-file header:\n%s", diff)
	}
	if !strings.Contains(diff, "--- /dev/null") {
		t.Errorf("addition should diff from /dev/null:\n%s", diff)
	}
	if !strings.Contains(diff, "+hello") {
		t.Errorf("missing added line:\n%s", diff)
	}
}

func TestTrackerDeletionGetsDeletedFileHeader(t *testing.T) {
	files := map[string]string{"gone.txt": "bye\n"}
	tr := NewTurnDiffTracker()
	patch := protocol.Patch{"gone.txt": {Kind: protocol.FileDelete}}
	if err := tr.OnPatchBegin(patch, readerFor(files)); err != nil {
		t.Fatal(err)
	}
	delete(files, "gone.txt")

	diff, err := tr.GetUnifiedDiff(readerFor(files))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "deleted file mode 100644") {
		t.Errorf("missing deleted-file header:\n%s", diff)
	}
	if !strings.Contains(diff, "+++ /dev/null") {
		t.Errorf("deletion should diff to /dev/null:\n%s", diff)
	}
}

func TestTrackerFollowsRenames(t *testing.T) {
	files := map[string]string{"old.go": "package a\n"}
	tr := NewTurnDiffTracker()
	patch := protocol.Patch{"old.go": {Kind: protocol.FileUpdate, UnifiedDiff: "@@\n package a", MovePath: "new.go"}}
	if err := tr.OnPatchBegin(patch, readerFor(files)); err != nil {
		t.Fatal(err)
	}
	delete(files, "old.go")
	files["new.go"] = "package a\n"

	if got := tr.CurrentPath("old.go"); got != "new.go" {
		t.Fatalf("CurrentPath(old.go) = %q, want new.go", got)
	}

	diff, err := tr.GetUnifiedDiff(readerFor(files))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "diff --git a/old.go b/new.go") {
		t.Errorf("rename header missing:\n%s", diff)
	}
	if !strings.Contains(diff, "rename from old.go") || !strings.Contains(diff, "rename to new.go") {
		t.Errorf("rename from/to lines missing:\n%s", diff)
	}
}
