package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Manager handles git operations
type Manager struct {
	cwd string
}

// NewManager creates a new git manager
func NewManager(cwd string) *Manager {
	return &Manager{cwd: cwd}
}

// execute runs a git command
func (m *Manager) execute(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = m.cwd
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %v\nOutput: %s", args[0], err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// IsRepo checks if the current directory is a git repository
func (m *Manager) IsRepo() bool {
	_, err := m.execute("rev-parse", "--is-inside-work-tree")
	return err == nil
}

// StageAll stages all changes
func (m *Manager) StageAll() error {
	_, err := m.execute("add", ".")
	return err
}

// Commit commits staged changes with a message and returns the new HEAD
// commit hash.
func (m *Manager) Commit(msg string) (string, error) {
	if _, err := m.execute("commit", "-m", msg); err != nil {
		return "", err
	}
	return m.execute("rev-parse", "HEAD")
}
