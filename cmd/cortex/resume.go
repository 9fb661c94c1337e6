package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [session-id]",
		Short: "Resume an existing session and continue its turn loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			session, err := e.manager.ResumeSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("resume session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed session %s (%d prior messages)\n", session.ID, len(session.History))
			return runInteractive(cmd, e, session)
		},
	}
	return cmd
}
