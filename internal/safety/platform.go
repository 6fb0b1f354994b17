package safety

import "github.com/riftlab/turnengine/internal/sandbox"

// platformSandbox reports which real sandbox mechanism this build can
// enforce. Neither seatbelt (macOS) nor Linux seccomp/landlock wiring is
// linked into this module, so auto-approved commands currently run with
// SandboxNone; the escalate-on-failure retry path stays intact for builds
// that install a real backend.
func platformSandbox() sandbox.SandboxType {
	return sandbox.SandboxNone
}
