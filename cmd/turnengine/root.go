// Package main wires protocol, rollout, sandbox, safety, diffs, tools,
// streamclient, orchestrator, autodrive, browser, git, and config into the
// turnengine CLI: a single cobra root with a handful of subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/protocol"
	"github.com/riftlab/turnengine/internal/sandbox"
)

var (
	flagModel          string
	flagApprovalPolicy string
	flagSandboxType    string
)

var rootCmd = &cobra.Command{
	Use:   "turnengine",
	Short: "A terminal coding-assistant session engine",
	Long: "turnengine drives a streaming coding-assistant session: it submits prompts, " +
		"dispatches tool calls through a sandboxed executor, gates risky actions behind " +
		"an approval policy, and records every turn to a resumable rollout log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL(cmd.Context(), "")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name override")
	rootCmd.PersistentFlags().StringVar(&flagApprovalPolicy, "approval-policy", "", "unless-trusted|on-failure|on-request|never")
	rootCmd.PersistentFlags().StringVar(&flagSandboxType, "sandbox", "", "none|seatbelt|linux-seccomp")

	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(mcpServerCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(serveCmd)
}

func resolveApprovalPolicy() protocol.ApprovalPolicy {
	switch flagApprovalPolicy {
	case string(protocol.ApprovalUnlessTrusted):
		return protocol.ApprovalUnlessTrusted
	case string(protocol.ApprovalOnFailure):
		return protocol.ApprovalOnFailure
	case string(protocol.ApprovalNever):
		return protocol.ApprovalNever
	case string(protocol.ApprovalOnRequest), "":
		return protocol.ApprovalOnRequest
	default:
		return protocol.ApprovalOnRequest
	}
}

func resolveSandboxType() sandbox.SandboxType {
	switch flagSandboxType {
	case string(sandbox.SandboxSeatbelt):
		return sandbox.SandboxSeatbelt
	case string(sandbox.SandboxLinuxSeccomp):
		return sandbox.SandboxLinuxSeccomp
	case string(sandbox.SandboxNone), "":
		return sandbox.SandboxNone
	default:
		return sandbox.SandboxNone
	}
}

func main() {
	// A panic anywhere must not leave a half-alive process: report and exit
	// non-zero so the parent (or the user's shell) sees the failure.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(1)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
