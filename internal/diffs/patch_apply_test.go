package diffs

import (
	"errors"
	"testing"

	"github.com/riftlab/turnengine/internal/protocol"
)

func memFileIO(files map[string]string) FileIO {
	return FileIO{
		Read: func(path string) ([]byte, bool, error) {
			content, ok := files[path]
			if !ok {
				return nil, false, nil
			}
			return []byte(content), true, nil
		},
		Write: func(path string, content []byte) error {
			files[path] = string(content)
			return nil
		},
		Remove: func(path string) error {
			if _, ok := files[path]; !ok {
				return errors.New("no such file")
			}
			delete(files, path)
			return nil
		},
	}
}

func TestApplyPatchAddDeleteUpdate(t *testing.T) {
	files := map[string]string{"existing.txt": "one\ntwo\nthree\n"}
	patch := protocol.Patch{
		"new.txt": protocol.FileChange{Kind: protocol.FileAdd, Content: "fresh\n"},
		"existing.txt": protocol.FileChange{
			Kind:        protocol.FileUpdate,
			UnifiedDiff: "@@\n one\n-two\n+TWO\n three",
		},
	}

	result, err := ApplyPatch(patch, memFileIO(files))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files["new.txt"] != "fresh\n" {
		t.Errorf("new.txt = %q", files["new.txt"])
	}
	if files["existing.txt"] != "one\nTWO\nthree" {
		t.Errorf("existing.txt = %q", files["existing.txt"])
	}
	if len(result.Added) != 1 || len(result.Updated) != 1 {
		t.Errorf("unexpected result summary: %+v", result)
	}
}

func TestApplyPatchUpdateMissingFile(t *testing.T) {
	files := map[string]string{}
	patch := protocol.Patch{
		"missing.txt": protocol.FileChange{Kind: protocol.FileUpdate, UnifiedDiff: "@@\n a\n-b\n+c"},
	}
	if _, err := ApplyPatch(patch, memFileIO(files)); err == nil {
		t.Fatal("expected error updating a file that does not exist")
	}
}

func TestApplyPatchMove(t *testing.T) {
	files := map[string]string{"src.go": "package a\nfunc Old() {}\n"}
	patch := protocol.Patch{
		"src.go": protocol.FileChange{
			Kind:        protocol.FileUpdate,
			UnifiedDiff: "@@\n package a\n-func Old() {}\n+func New() {}",
			MovePath:    "dst.go",
		},
	}
	result, err := ApplyPatch(patch, memFileIO(files))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := files["src.go"]; ok {
		t.Errorf("src.go should have been removed after move")
	}
	if files["dst.go"] != "package a\nfunc New() {}" {
		t.Errorf("dst.go = %q", files["dst.go"])
	}
	if result.Moved["src.go"] != "dst.go" {
		t.Errorf("Moved map = %v", result.Moved)
	}
}

func TestApplyResultSummary(t *testing.T) {
	result := ApplyResult{Added: []string{"a.txt"}, Updated: []string{"b.txt"}, Deleted: []string{"c.txt"}, Moved: map[string]string{}}
	summary := result.Summary()
	for _, want := range []string{"A a.txt", "M b.txt", "D c.txt"} {
		if !containsLine(summary, want) {
			t.Errorf("summary %q missing line %q", summary, want)
		}
	}
}

func containsLine(haystack, line string) bool {
	for _, l := range splitKeepingEmpty(haystack) {
		if l == line {
			return true
		}
	}
	return false
}
