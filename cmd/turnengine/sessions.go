package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riftlab/turnengine/internal/rollout"
)

var (
	sessionsLimit  int
	sessionsSource string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sources []string
		if sessionsSource != "" {
			sources = []string{sessionsSource}
		}
		page, err := rollout.GetConversations(sessionsLimit, nil, sources)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			fmt.Printf("%s  %s  %s\n", item.ID, item.Timestamp.Format("2006-01-02 15:04"), item.Snippet)
			fmt.Printf("  %s\n", item.Path)
		}
		if page.ReachedScanCap {
			fmt.Fprintln(os.Stderr, "warning: scan cap reached, listing may be incomplete")
		}
		return nil
	},
}

var sessionsResumableCmd = &cobra.Command{
	Use:   "resumable",
	Short: "List sessions recorded against the current workspace, from the per-directory index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		entries, err := rollout.ReadDirIndex(cwd)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %d items  %s\n", e.CreatedTs.Format("2006-01-02 15:04"), e.MessageCount, e.LastUserSnippet)
			fmt.Printf("  %s\n", e.SessionFile)
		}
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "max conversations to list")
	sessionsListCmd.Flags().StringVar(&sessionsSource, "source", "", "only list sessions from this source (CLI, Exec, Serve)")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsResumableCmd)
}
