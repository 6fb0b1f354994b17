package safety

import (
	"strings"
	"sync"
)

// approvalCache remembers user-granted approvals for the lifetime of a
// session: an exact command vector always matches; a single-word command is
// additionally remembered as a "semantic prefix" so `git status` approval
// also covers a later `git status --short`.
type approvalCache struct {
	mu       sync.RWMutex
	exact    map[string]bool
	prefixes map[string]bool
}

func newApprovalCache() *approvalCache {
	return &approvalCache{exact: map[string]bool{}, prefixes: map[string]bool{}}
}

func (c *approvalCache) remember(command []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exact[key(command)] = true
	if len(command) > 0 {
		c.prefixes[command[0]] = true
	}
}

func (c *approvalCache) hit(command []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.exact[key(command)] {
		return true
	}
	if len(command) > 0 && c.prefixes[command[0]] {
		return true
	}
	return false
}

func key(command []string) string { return strings.Join(command, "\x00") }
