package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildNewCmd() *cobra.Command {
	var model, instructions string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new session and begin an interactive turn loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if model == "" {
				model = e.cfg.DefaultModel
			}
			session, err := e.manager.NewSession(cmd.Context(), model, e.workspace, instructions)
			if err != nil {
				return fmt.Errorf("new session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started session %s\n", session.ID)
			return runInteractive(cmd, e, session)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model to use (defaults to the config's default_model)")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Extra system instructions for this session")
	return cmd
}
