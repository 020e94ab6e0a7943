package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/store"
)

var assignCmd = &cobra.Command{
	Use:   "assign <experiment> <user-id>",
	Short: "Assign a user to an experiment variant",
	Long: `Assign a user to an experiment variant.

Assignment is idempotent: a user already enrolled keeps their variant.
Ineligible users are reported with the failing criterion.

Example:
  intervene assign winback user-42`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	return withEngine(func(s *store.SQLiteStore, eng *engine.Service) error {
		ctx := context.Background()

		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		result, err := eng.Assign(ctx, exp.ID, args[1])
		if err != nil {
			return err
		}

		switch {
		case result.AlreadyAssigned:
			fmt.Printf("User %s is already assigned to variant '%s' (assignment %s)\n",
				args[1], result.Assignment.VariantID, result.Assignment.ID)
		case result.Assigned:
			fmt.Printf("Assigned user %s to variant '%s' (assignment %s)\n",
				args[1], result.Variant.VariantID, result.Assignment.ID)
		default:
			fmt.Printf("User %s not assigned: %s\n", args[1], result.Reason)
		}

		return nil
	})
}
