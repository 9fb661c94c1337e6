package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildForkCmd() *cobra.Command {
	var forkPoint string

	cmd := &cobra.Command{
		Use:   "fork [parent-session-id]",
		Short: "Fork a session at an optional message index and continue from the copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			session, err := e.manager.ForkSession(cmd.Context(), args[0], forkPoint)
			if err != nil {
				return fmt.Errorf("fork session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forked %s from %s (%d messages carried over)\n", session.ID, args[0], len(session.History))
			return runInteractive(cmd, e, session)
		},
	}
	cmd.Flags().StringVar(&forkPoint, "at", "", "0-based message index to fork at, counting user+assistant messages (defaults to the parent's entire history)")
	return cmd
}
