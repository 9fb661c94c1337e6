package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexlabs/cortex/internal/lifecycle"
)

func buildListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome(cmd)
			if err != nil {
				return err
			}
			_, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			manager := lifecycle.New(home, nil, logger.Slog())

			summaries, err := manager.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPARENT\tMODEL\tCWD\tBRANCH\tCREATED")
			for _, s := range summaries {
				parent := "-"
				if s.ParentID != "" {
					parent = s.ParentID
				}
				branch := "-"
				if s.GitBranch != "" {
					branch = s.GitBranch
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, parent, s.Model, s.Cwd, branch, s.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max number of sessions to list")
	return cmd
}
