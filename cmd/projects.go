package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List known projects and whether a run is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := stateFrom(cmd.Context())
			if err != nil {
				return err
			}
			engine := st.app.Engine()
			projects, err := engine.Projects(cmd.Context())
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPLATFORMS\tSTATUS\tACTIVE")
			for _, p := range projects {
				status, err := engine.Status(cmd.Context(), p.ID)
				if err != nil {
					return fmt.Errorf("status for %s: %w", p.ID, err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n",
					p.ID, p.Name, strings.Join(p.Platforms, ","), p.Status, status.IsActive)
			}
			return tw.Flush()
		},
	}
}
