package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and assignment counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exps, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(exps) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  intervene create winback --state at_risk --variants \"control=50,treatment=50\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSEGMENT\tSTATUS\tVARIANTS\tASSIGNED\tWINNER\tCREATED")

		for _, exp := range exps {
			assignments, err := s.ListAssignments(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to list assignments for %s: %w", exp.ID, err)
			}

			winner := "-"
			if exp.ResultsSummary != nil && exp.ResultsSummary.WinningVariant != "" {
				winner = fmt.Sprintf("%s (%d%%)", exp.ResultsSummary.WinningVariant, exp.ResultsSummary.ConfidenceLevel)
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				shortID(exp.ID), exp.Name, exp.LifecycleState, exp.Status,
				len(exp.Variants), len(assignments), winner,
				exp.CreatedAt.Format("2006-01-02"))
		}

		return w.Flush()
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
