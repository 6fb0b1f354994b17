// Package paths centralizes the on-disk layout of the engine's
// CODEX_HOME-rooted home directory: where rollout files live and where the
// per-working-directory index files live.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// GetGlobalDir returns the engine's home directory: CODEX_HOME if set,
// otherwise ~/.codex.
func GetGlobalDir() string {
	if home := os.Getenv("CODEX_HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codex")
}

// GetRolloutsDir returns the root directory under which all rollout JSONL
// files are written, grouped by year/month/day.
func GetRolloutsDir() string {
	return filepath.Join(GetGlobalDir(), "sessions")
}

// GetDirIndexPath returns the per-working-directory index file path for cwd.
func GetDirIndexPath(cwd string) string {
	return filepath.Join(GetGlobalDir(), "sessions", "index", "by-dir", sanitizeCwd(cwd)+".jsonl")
}

func sanitizeCwd(cwd string) string {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		abs = cwd
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, abs)
}
