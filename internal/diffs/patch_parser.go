package diffs

import (
	"fmt"
	"strings"

	"github.com/riftlab/turnengine/internal/protocol"
)

// ParsePatchEnvelope parses the model-facing apply_patch text format:
//
//	*** Begin Patch
//	*** Add File: path/to/file
//	+line one
//	+line two
//	*** Update File: path/to/other [*** Move to: new/path]
//	@@ ... context/old lines prefixed with nothing or '-', new lines '+' ...
//	*** Delete File: path/to/gone
//	*** End Patch
//
// Returns a diagnostic-bearing error (never a panic) on any malformed
// input so callers can surface
// "apply_patch verification failed\n<diagnostics>" verbatim.
func ParsePatchEnvelope(text string) (protocol.Patch, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	start := indexOfTrimmed(lines, "*** Begin Patch")
	if start == -1 {
		return nil, fmt.Errorf("invalid hunk: missing '*** Begin Patch' header")
	}
	end := indexOfTrimmed(lines, "*** End Patch")
	if end == -1 || end < start {
		return nil, fmt.Errorf("invalid hunk: missing '*** End Patch' trailer")
	}

	patch := protocol.Patch{}
	var path string
	var kind protocol.FileChangeKind
	var movePath string
	var body []string

	flush := func() error {
		if path == "" {
			return nil
		}
		switch kind {
		case protocol.FileAdd:
			patch[path] = protocol.FileChange{Kind: protocol.FileAdd, Content: strings.Join(trimAddLines(body), "")}
		case protocol.FileDelete:
			patch[path] = protocol.FileChange{Kind: protocol.FileDelete}
		case protocol.FileUpdate:
			if len(body) == 0 {
				return fmt.Errorf("invalid hunk: %q has no hunk body", path)
			}
			patch[path] = protocol.FileChange{Kind: protocol.FileUpdate, UnifiedDiff: strings.Join(body, "\n"), MovePath: movePath}
		}
		path, movePath = "", ""
		body = nil
		return nil
	}

	for i := start + 1; i < end; i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "*** Add File: "):
			if err := flush(); err != nil {
				return nil, err
			}
			path = strings.TrimPrefix(trimmed, "*** Add File: ")
			kind = protocol.FileAdd
		case strings.HasPrefix(trimmed, "*** Delete File: "):
			if err := flush(); err != nil {
				return nil, err
			}
			path = strings.TrimPrefix(trimmed, "*** Delete File: ")
			kind = protocol.FileDelete
		case strings.HasPrefix(trimmed, "*** Update File: "):
			if err := flush(); err != nil {
				return nil, err
			}
			path = strings.TrimPrefix(trimmed, "*** Update File: ")
			kind = protocol.FileUpdate
		case strings.HasPrefix(trimmed, "*** Move to: "):
			if path == "" || kind != protocol.FileUpdate {
				return nil, fmt.Errorf("invalid hunk: 'Move to' outside an Update File block")
			}
			movePath = strings.TrimPrefix(trimmed, "*** Move to: ")
		default:
			if path == "" {
				if trimmed == "" {
					continue
				}
				return nil, fmt.Errorf("invalid hunk: unexpected line outside any file block: %q", trimmed)
			}
			body = append(body, line)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("invalid hunk: patch contains no file operations")
	}
	return patch, nil
}

func indexOfTrimmed(lines []string, want string) int {
	for i, l := range lines {
		if strings.TrimSpace(l) == want {
			return i
		}
	}
	return -1
}

// trimAddLines strips the leading '+' the Add File format requires on every
// content line, reconstructing the file's literal bytes. Every content
// line contributes a trailing newline.
func trimAddLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.TrimPrefix(l, "+")+"\n")
	}
	return out
}
