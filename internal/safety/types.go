// Package safety implements the three-way approval gate: every exec or
// patch request resolves to AutoApprove, AskUser, or Reject before it
// reaches the sandbox.
package safety

import (
	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/sandbox"
)

// Decision is the three-way outcome of a safety assessment.
type Decision struct {
	Kind                  DecisionKind
	Sandbox               sandbox.SandboxType
	UserExplicitlyApproved bool
	RejectReason           string
}

type DecisionKind string

const (
	DecisionAutoApprove DecisionKind = "auto_approve"
	DecisionAskUser     DecisionKind = "ask_user"
	DecisionReject      DecisionKind = "reject"
)

func AutoApprove(sb sandbox.SandboxType, userApproved bool) Decision {
	return Decision{Kind: DecisionAutoApprove, Sandbox: sb, UserExplicitlyApproved: userApproved}
}

func AskUser() Decision { return Decision{Kind: DecisionAskUser} }

func Reject(reason string) Decision { return Decision{Kind: DecisionReject, RejectReason: reason} }

// TrustedCommands are command names the gate treats as always safe to
// auto-approve under read-only or workspace-write sandboxes. A trusted
// name only covers invocations that do not escalate permissions.
var TrustedCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true,
	"find": true, "grep": true, "rg": true, "sort": true, "pwd": true,
	"whoami": true, "date": true, "echo": true, "which": true, "stat": true,
	"true": true, "false": true, "git": true,
}

// Gate assesses commands and patches against the session's policies.
type Gate struct {
	Approval ApprovalPolicy
	Sandbox  protocol.SandboxPolicy
	cache    *approvalCache
}

type ApprovalPolicy = protocol.ApprovalPolicy

func NewGate(approval ApprovalPolicy, sb protocol.SandboxPolicy) *Gate {
	return &Gate{Approval: approval, Sandbox: sb, cache: newApprovalCache()}
}
