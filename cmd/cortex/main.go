// Command cortex is a terminal front end for the session engine: it
// drives one session's turn loop from stdin, printing streamed
// assistant text and prompting for tool-call approval, alongside
// session-management subcommands (new, resume, fork, list).
//
// This stands in for the richer front ends (a TUI, an HTTP/WebSocket
// gateway, a chat-platform bridge) that drive internal/wire's
// Submission/Event channels in production; those are an external
// collaborator's concern, not the session engine's.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the command tree. Separated from main so tests
// can exercise it without calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cortex",
		Short:         "Drive an agentic coding session from a terminal",
		Version:       fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("home", "", "Cortex home directory (default $CORTEX_HOME or ~/.cortex)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildNewCmd(),
		buildResumeCmd(),
		buildForkCmd(),
		buildListCmd(),
	)
	return rootCmd
}
