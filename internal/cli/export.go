package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <experiment>",
	Short: "Export raw assignment data",
	Long: `Export an experiment's assignments in CSV or JSON format.

Examples:
  intervene export winback --format csv > winback.csv
  intervene export winback --format json > winback.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		assignments, err := s.ListAssignments(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(assignments)
		}
		return exportJSON(assignments)
	})
}

func exportCSV(assignments []*store.Assignment) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{
		"id", "test_id", "user_id", "variant_id", "assigned_at",
		"lifecycle_state_before", "churn_risk_before", "sessions_7days_before",
		"intervention_shown", "user_action", "conversion_events",
		"lifecycle_state_after", "churn_risk_after", "sessions_7days_after",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, a := range assignments {
		row := []string{
			a.ID, a.TestID, a.UserID, a.VariantID,
			a.AssignedAt.Format("2006-01-02 15:04:05"),
			a.LifecycleStateBefore,
			strconv.FormatFloat(a.ChurnRiskBefore, 'f', -1, 64),
			strconv.Itoa(a.Sessions7DaysBefore),
			strconv.FormatBool(a.InterventionShown),
			string(a.UserAction),
			strconv.Itoa(len(a.ConversionEvents)),
			stringOrEmpty(a.LifecycleStateAfter),
			floatOrEmpty(a.ChurnRiskAfter),
			intOrEmpty(a.Sessions7DaysAfter),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

func exportJSON(assignments []*store.Assignment) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(assignments)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func intOrEmpty(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}
