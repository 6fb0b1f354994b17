package diffs

import (
	"strings"
	"testing"

	"github.com/riftlab/turnengine/internal/protocol"
)

func TestParsePatchEnvelopeAddFile(t *testing.T) {
	text := "*** Begin Patch\n" +
		"*** Add File: notes.txt\n" +
		"+hello\n" +
		"+world\n" +
		"*** End Patch"

	patch, err := ParsePatchEnvelope(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	change, ok := patch["notes.txt"]
	if !ok {
		t.Fatalf("expected notes.txt in patch, got %v", patch)
	}
	if change.Kind != protocol.FileAdd {
		t.Errorf("kind = %v, want FileAdd", change.Kind)
	}
	if change.Content != "hello\nworld\n" {
		t.Errorf("content = %q, want %q", change.Content, "hello\nworld\n")
	}
}

func TestParsePatchEnvelopeUpdateAndMove(t *testing.T) {
	text := "*** Begin Patch\n" +
		"*** Update File: old.go\n" +
		"*** Move to: new.go\n" +
		"@@\n" +
		" unchanged\n" +
		"-removed\n" +
		"+added\n" +
		"*** End Patch"

	patch, err := ParsePatchEnvelope(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	change, ok := patch["old.go"]
	if !ok {
		t.Fatalf("expected old.go in patch, got %v", patch)
	}
	if change.Kind != protocol.FileUpdate {
		t.Errorf("kind = %v, want FileUpdate", change.Kind)
	}
	if change.MovePath != "new.go" {
		t.Errorf("MovePath = %q, want new.go", change.MovePath)
	}
}

func TestParsePatchEnvelopeDeleteFile(t *testing.T) {
	text := "*** Begin Patch\n*** Delete File: gone.txt\n*** End Patch"
	patch, err := ParsePatchEnvelope(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch["gone.txt"].Kind != protocol.FileDelete {
		t.Errorf("expected delete kind, got %v", patch["gone.txt"].Kind)
	}
}

func TestParsePatchEnvelopeInvalidHunk(t *testing.T) {
	cases := []string{
		"not a patch at all",
		"*** Begin Patch\nno trailer here",
		"*** Begin Patch\n*** Update File: broken.txt\n*** End Patch",
		"*** Begin Patch\nstray line\n*** End Patch",
	}
	for _, text := range cases {
		_, err := ParsePatchEnvelope(text)
		if err == nil {
			t.Errorf("expected error for input %q", text)
			continue
		}
		if !strings.Contains(err.Error(), "invalid hunk") {
			t.Errorf("error %q does not mention 'invalid hunk'", err.Error())
		}
	}
}
