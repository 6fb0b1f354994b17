// Package diffs accumulates the structured FileChange patches a turn
// applies into unified-diff text, in two flavors: PatchAccumulator shells
// out to `git diff --no-index` against on-disk baseline snapshots, and
// TurnDiffTracker keeps everything in memory for a single turn's preview.
package diffs

import "github.com/riftlab/turnengine/internal/protocol"

// zeroOID is the synthetic git object id used in the "index" line of a
// diff header for files that never had a real git blob (additions,
// deletions, and anything generated outside a git repository).
const zeroOID = "0000000000000000000000000000000000000000"

// fileMode mirrors the two modes git diff headers care about here.
type fileMode string

const (
	modeRegular    fileMode = "100644"
	modeExecutable fileMode = "100755"
)

type baseline struct {
	path    string
	content []byte
	existed bool
}

func pathsOf(patch protocol.Patch) []string {
	paths := make([]string, 0, len(patch))
	for p := range patch {
		paths = append(paths, p)
	}
	return paths
}
