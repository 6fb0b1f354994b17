package git

import "strings"

// Info is the git branch/head captured alongside a rollout's SessionMeta
// when the session starts inside a repository.
type Info struct {
	Branch string `json:"branch,omitempty"`
	Head   string `json:"head,omitempty"`
}

// CaptureInfo returns the current branch and HEAD commit, or ok=false if
// cwd is not inside a git repository.
func (m *Manager) CaptureInfo() (Info, bool) {
	if !m.IsRepo() {
		return Info{}, false
	}
	branch, err := m.execute("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Info{}, false
	}
	head, err := m.execute("rev-parse", "HEAD")
	if err != nil {
		return Info{}, false
	}
	return Info{Branch: strings.TrimSpace(branch), Head: strings.TrimSpace(head)}, true
}
