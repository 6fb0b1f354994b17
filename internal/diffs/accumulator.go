package diffs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/riftlab/turnengine/internal/protocol"
)

// PatchAccumulator tracks, across a whole session, the original content of
// every path a patch has ever touched, and can render the net diff between
// that original and the path's current on-disk content by shelling out to
// `git diff --no-index`. Each path's baseline is captured only the first
// time PatchAccumulator ever sees it, so successive patches against the
// same file accumulate into one diff against the session's starting point.
type PatchAccumulator struct {
	mu        sync.Mutex
	dir       string
	baselines map[string]baseline
	names     map[string]string // path -> stable uuid-based internal filename
}

func NewPatchAccumulator() (*PatchAccumulator, error) {
	dir, err := os.MkdirTemp("", "turnengine-patch-*")
	if err != nil {
		return nil, err
	}
	return &PatchAccumulator{
		dir:       dir,
		baselines: map[string]baseline{},
		names:     map[string]string{},
	}, nil
}

func (a *PatchAccumulator) Close() error {
	return os.RemoveAll(a.dir)
}

// OnPatchBegin captures the baseline for every path in patch that hasn't
// been seen before. Must be called with the path's content as it was
// immediately before this patch was applied.
func (a *PatchAccumulator) OnPatchBegin(patch protocol.Patch, readBefore func(path string) ([]byte, bool, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for path := range patch {
		if _, ok := a.baselines[path]; ok {
			continue
		}
		content, existed, err := readBefore(path)
		if err != nil {
			return fmt.Errorf("capture baseline for %s: %w", path, err)
		}
		a.baselines[path] = baseline{path: path, content: content, existed: existed}
		a.names[path] = a.uuidFilenameFor(path)
	}
	return nil
}

// uuidFilenameFor derives a stable internal filename for path: a random
// UUID preserving path's original extension, so `git diff --no-index`
// headers don't leak the real working-tree layout.
func (a *PatchAccumulator) uuidFilenameFor(path string) string {
	ext := filepath.Ext(path)
	return uuid.NewString() + ext
}

// UpdateUnifiedDiff renders the diff between each tracked path's baseline
// and its current on-disk content (readAfter returns the current bytes, or
// existed=false if the path was deleted).
func (a *PatchAccumulator) UpdateUnifiedDiff(readAfter func(path string) ([]byte, bool, error)) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	paths := make([]string, 0, len(a.baselines))
	for p := range a.baselines {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sections []string
	for _, path := range paths {
		after, afterExisted, err := readAfter(path)
		if err != nil {
			return "", fmt.Errorf("read current content for %s: %w", path, err)
		}
		section, err := a.diffOne(path, a.baselines[path], after, afterExisted)
		if err != nil {
			return "", err
		}
		if section != "" {
			sections = append(sections, section)
		}
	}
	return strings.Join(sections, ""), nil
}

func (a *PatchAccumulator) diffOne(path string, base baseline, after []byte, afterExisted bool) (string, error) {
	if base.existed == afterExisted && string(base.content) == string(after) {
		return "", nil
	}

	internalName := a.names[path]
	beforePath := filepath.Join(a.dir, "a", internalName)
	afterPath := filepath.Join(a.dir, "b", internalName)

	beforeArg := "/dev/null"
	if base.existed {
		if err := os.MkdirAll(filepath.Dir(beforePath), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(beforePath, base.content, 0o644); err != nil {
			return "", err
		}
		beforeArg = beforePath
	}

	afterArg := "/dev/null"
	if afterExisted {
		if err := os.MkdirAll(filepath.Dir(afterPath), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(afterPath, after, 0o644); err != nil {
			return "", err
		}
		afterArg = afterPath
	}

	raw, err := runGitAllowExitCodes(a.dir, "diff", "--no-index", "--", beforeArg, afterArg)
	if err != nil {
		return "", err
	}
	return rewriteDiffPaths(raw, beforePath, afterPath, path), nil
}

// runGitAllowExitCodes shells to git, treating exit codes 0 (no diff) and 1
// (diff produced) as success; any other code is a real git failure.
func runGitAllowExitCodes(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err == nil {
		return string(out), nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return string(out), nil
	}
	return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
}

// rewriteDiffPaths replaces the UUID-named temp-dir paths in a raw
// `git diff --no-index` output with the real working-tree path the caller
// should see. git prints an absolute operand with its leading slash
// stripped after the a/ and b/ prefixes, so both forms are rewritten.
func rewriteDiffPaths(raw, beforePath, afterPath, realPath string) string {
	for _, p := range []string{beforePath, afterPath} {
		trimmed := strings.TrimPrefix(p, "/")
		raw = strings.ReplaceAll(raw, "a/"+trimmed, "a/"+realPath)
		raw = strings.ReplaceAll(raw, "b/"+trimmed, "b/"+realPath)
		raw = strings.ReplaceAll(raw, p, realPath)
	}
	return raw
}
