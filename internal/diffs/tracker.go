package diffs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/riftlab/turnengine/internal/protocol"
)

// TurnDiffTracker renders a single turn's net file changes into a unified
// diff entirely in memory, for inline display while a turn is still in
// progress (PatchApplyBegin/PatchApplyEnd events). Unlike PatchAccumulator
// it never shells out to git; line matching is the small LCS-based
// implementation in diff_lines.go.
type TurnDiffTracker struct {
	mu        sync.Mutex
	baselines map[string]baseline
	// renames maps a baseline path to its current external path, following
	// every move applied since the baseline was captured.
	renames map[string]string
}

func NewTurnDiffTracker() *TurnDiffTracker {
	return &TurnDiffTracker{baselines: map[string]baseline{}, renames: map[string]string{}}
}

// OnPatchBegin captures the baseline for every path in patch the tracker
// hasn't seen this turn, and records rename mappings for moves. The
// baseline for a path is captured exactly once per turn, at first
// observation; later patches against the same file keep diffing against
// that first snapshot.
func (t *TurnDiffTracker) OnPatchBegin(patch protocol.Patch, readBefore func(path string) ([]byte, bool, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, change := range patch {
		orig := t.originalPathLocked(path)
		if _, ok := t.baselines[orig]; !ok {
			content, existed, err := readBefore(path)
			if err != nil {
				return fmt.Errorf("capture baseline for %s: %w", path, err)
			}
			t.baselines[orig] = baseline{path: orig, content: content, existed: existed}
		}
		if change.Kind == protocol.FileUpdate && change.MovePath != "" {
			t.renames[orig] = change.MovePath
		}
	}
	return nil
}

// originalPathLocked resolves path back to the baseline path it descends
// from, if a prior move in this turn renamed it.
func (t *TurnDiffTracker) originalPathLocked(path string) string {
	for orig, current := range t.renames {
		if current == path {
			return orig
		}
	}
	return path
}

// CurrentPath reports where a tracked baseline path lives now, following
// any renames applied this turn.
func (t *TurnDiffTracker) CurrentPath(origPath string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.renames[origPath]; ok {
		return current
	}
	return origPath
}

// GetUnifiedDiff renders the net diff of every tracked path against its
// current content, in deterministic path order.
func (t *TurnDiffTracker) GetUnifiedDiff(readAfter func(path string) ([]byte, bool, error)) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.baselines))
	for p := range t.baselines {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, path := range paths {
		base := t.baselines[path]
		current := path
		if moved, ok := t.renames[path]; ok {
			current = moved
		}
		after, afterExisted, err := readAfter(current)
		if err != nil {
			return "", err
		}
		if current == path && base.existed == afterExisted && string(base.content) == string(after) {
			continue
		}
		sb.WriteString(fileHeader(path, current, base.existed, afterExisted))
		sb.WriteString(unifiedHunks(path, current, base.content, after, base.existed, afterExisted))
	}
	return sb.String(), nil
}

func fileHeader(oldPath, newPath string, before, after bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", oldPath, newPath)
	switch {
	case !before && after:
		fmt.Fprintf(&sb, "new file mode %s\n", modeRegular)
		fmt.Fprintf(&sb, "index %s..%s\n", zeroOID[:7], zeroOID[:7])
	case before && !after:
		fmt.Fprintf(&sb, "deleted file mode %s\n", modeRegular)
		fmt.Fprintf(&sb, "index %s..%s\n", zeroOID[:7], zeroOID[:7])
	default:
		if oldPath != newPath {
			fmt.Fprintf(&sb, "rename from %s\n", oldPath)
			fmt.Fprintf(&sb, "rename to %s\n", newPath)
		}
		fmt.Fprintf(&sb, "index %s..%s %s\n", zeroOID[:7], zeroOID[:7], modeRegular)
	}
	return sb.String()
}
