package safety

import (
	"path/filepath"
	"strings"

	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/sandbox"
)

// AssessCommandSafety resolves the approval decision and sandbox choice
// for one shell exec: Never always auto-approves; UnlessTrusted
// auto-approves only trusted commands and rejects the rest outright;
// OnFailure always auto-approves under the platform sandbox; OnRequest
// auto-approves trusted commands and anything already in the approval
// cache, and asks for everything else.
func (g *Gate) AssessCommandSafety(command []string, withEscalatedPermissions bool) Decision {
	if g.Sandbox.Kind == protocol.SandboxDangerFullAccess {
		return AutoApprove(sandbox.SandboxNone, false)
	}

	// A request to escalate out of the sandbox is never resolved silently:
	// the user decides, except under Never where nothing may be asked.
	if withEscalatedPermissions {
		if g.Approval == protocol.ApprovalNever {
			return Reject("escalated permissions are not available under the never-ask policy")
		}
		return AskUser()
	}

	trusted := isTrustedCommand(command)
	cached := g.cache.hit(command)

	if cached {
		// A session approval runs the exact command the user saw, outside
		// the sandbox, without prompting again.
		return AutoApprove(sandbox.SandboxNone, true)
	}

	switch g.Approval {
	case protocol.ApprovalNever:
		return AutoApprove(g.platformSandboxOrNone(), false)

	case protocol.ApprovalUnlessTrusted:
		if trusted {
			return AutoApprove(g.platformSandboxOrNone(), false)
		}
		return Reject("requires approval")

	case protocol.ApprovalOnFailure:
		return AutoApprove(g.platformSandboxOrNone(), false)

	case protocol.ApprovalOnRequest:
		if trusted {
			return AutoApprove(g.platformSandboxOrNone(), false)
		}
		return AskUser()
	}
	return AskUser()
}

// RecordApproval remembers a user's one-time approval so a repeated
// invocation of the same command (or the same leading binary, for a
// semantic-prefix match) auto-approves for the rest of the session.
func (g *Gate) RecordApproval(command []string) {
	g.cache.remember(command)
}

// platformSandboxOrNone picks the isolation mechanism for an auto-approved
// exec: the platform sandbox where one is available, otherwise None.
func (g *Gate) platformSandboxOrNone() sandbox.SandboxType {
	if g.Sandbox.Kind == protocol.SandboxDangerFullAccess {
		return sandbox.SandboxNone
	}
	return platformSandbox()
}

// ShouldEscalateOnFailure reports whether a failed sandboxed exec should be
// retried without isolation: only meaningful when the exec actually ran
// under a real sandbox and the approval policy allows retrying.
func (g *Gate) ShouldEscalateOnFailure(sb sandbox.SandboxType) bool {
	if sb != sandbox.SandboxSeatbelt && sb != sandbox.SandboxLinuxSeccomp {
		return false
	}
	return g.Approval == protocol.ApprovalUnlessTrusted || g.Approval == protocol.ApprovalOnFailure
}

// AssessPatchSafety checks a structured patch against the workspace-write
// sandbox's writable roots; any path outside every writable root sends the
// whole patch to the user (AskUser) rather than partially applying it.
func (g *Gate) AssessPatchSafety(patch protocol.Patch) Decision {
	if g.Sandbox.Kind == protocol.SandboxDangerFullAccess {
		return AutoApprove(sandbox.SandboxNone, false)
	}
	for path := range patch {
		if !withinAnyRoot(g.Sandbox.WritableRoots, path) {
			return AskUser()
		}
	}
	return AutoApprove(sandbox.SandboxNone, false)
}

func withinAnyRoot(roots []string, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isTrustedCommand(command []string) bool {
	if len(command) == 0 {
		return false
	}
	name := filepath.Base(command[0])
	return TrustedCommands[name]
}
