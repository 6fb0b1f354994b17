package git

import "fmt"

// AddWorktree checks out a new worktree at path on a fresh branch
// (branchName), giving a peer agent spawned by agent_run an isolated copy
// of the workspace to mutate without racing the primary session's files.
func (m *Manager) AddWorktree(path, branchName string) error {
	if _, err := m.execute("worktree", "add", "-b", branchName, path); err != nil {
		return fmt.Errorf("create worktree: %w", err)
	}
	return nil
}

// RemoveWorktree tears down a worktree created by AddWorktree.
func (m *Manager) RemoveWorktree(path string) error {
	if _, err := m.execute("worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}
	return nil
}
