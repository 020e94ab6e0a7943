package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		lifecycleState string
		variants       string
		metric         string
		status         string
		startDate      string
		endDate        string
		minDays        int
		maxDays        int
		churnMin       float64
		churnMax       float64
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new intervention experiment targeting a lifecycle state.

Variants are "id=allocation" pairs; allocation is a traffic percentage and
the first variant is the control. An optional display name goes between id
and allocation.

Examples:
  intervene create winback --state at_risk --variants "control=50,discount=50"
  intervene create nudge --state dormant --variants "control:No nudge=34,email:Email nudge=33,push:Push nudge=33" \
    --metric churn_reduction --min-days 7 --churn-min 0.4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			variantList, err := parseVariants(variants)
			if err != nil {
				return err
			}

			if metric == "" {
				metric, err = promptMetric()
				if err != nil {
					return err
				}
			}
			if !validMetric(metric) {
				return fmt.Errorf("invalid metric: %s", metric)
			}

			criteria := &store.TargetCriteria{}
			hasCriteria := false
			if cmd.Flags().Changed("min-days") {
				criteria.MinDaysInState = &minDays
				hasCriteria = true
			}
			if cmd.Flags().Changed("max-days") {
				criteria.MaxDaysInState = &maxDays
				hasCriteria = true
			}
			if cmd.Flags().Changed("churn-min") {
				criteria.ChurnRiskMin = &churnMin
				hasCriteria = true
			}
			if cmd.Flags().Changed("churn-max") {
				criteria.ChurnRiskMax = &churnMax
				hasCriteria = true
			}
			if !hasCriteria {
				criteria = nil
			}

			start, err := parseDate(startDate)
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
			end, err := parseDate(endDate)
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}

			exp := &store.Experiment{
				ID:             uuid.NewString(),
				Name:           name,
				LifecycleState: lifecycleState,
				Status:         store.ExperimentStatus(status),
				StartDate:      start,
				EndDate:        end,
				Variants:       variantList,
				TargetCriteria: criteria,
				SuccessMetrics: store.SuccessMetrics{PrimaryMetric: store.PrimaryMetric(metric)},
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.CreateExperiment(context.Background(), exp); err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) targeting state '%s':\n", exp.Name, exp.ID, exp.LifecycleState)
				for i, v := range exp.Variants {
					role := ""
					if i == 0 {
						role = " (control)"
					}
					fmt.Printf("  %s: %s, %.0f%% traffic%s\n", v.VariantID, v.Name, v.TrafficAllocation, role)
				}
				fmt.Printf("  Primary metric: %s\n", metric)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lifecycleState, "state", "", "lifecycle state the experiment targets (required)")
	cmd.Flags().StringVar(&variants, "variants", "", "comma-separated id[:name]=allocation pairs (required)")
	cmd.Flags().StringVar(&metric, "metric", "", "primary success metric (prompted if omitted)")
	cmd.Flags().StringVar(&status, "status", string(store.StatusActive), "initial status (draft, active, paused, completed)")
	cmd.Flags().StringVar(&startDate, "start", "", "start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "end date, YYYY-MM-DD")
	cmd.Flags().IntVar(&minDays, "min-days", 0, "minimum days in state")
	cmd.Flags().IntVar(&maxDays, "max-days", 0, "maximum days in state")
	cmd.Flags().Float64Var(&churnMin, "churn-min", 0, "minimum churn risk score")
	cmd.Flags().Float64Var(&churnMax, "churn-max", 0, "maximum churn risk score")
	cmd.MarkFlagRequired("state")
	cmd.MarkFlagRequired("variants")

	return cmd
}

func parseVariants(spec string) ([]store.Variant, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("need at least 2 variants. Example: --variants \"control=50,treatment=50\"")
	}

	seen := make(map[string]bool, len(parts))
	variants := make([]store.Variant, 0, len(parts))
	for _, part := range parts {
		idName, allocStr, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("invalid variant %q: expected id[:name]=allocation", part)
		}

		id, name, hasName := strings.Cut(idName, ":")
		if !hasName {
			name = id
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid variant %q: empty id", part)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate variant id %q", id)
		}
		seen[id] = true

		alloc, err := strconv.ParseFloat(strings.TrimSpace(allocStr), 64)
		if err != nil || alloc < 0 || alloc > 100 {
			return nil, fmt.Errorf("invalid allocation for variant %q: must be 0-100", id)
		}

		variants = append(variants, store.Variant{
			VariantID:         id,
			Name:              strings.TrimSpace(name),
			TrafficAllocation: alloc,
		})
	}

	return variants, nil
}

func promptMetric() (string, error) {
	metrics := []string{
		"click_through_rate",
		"action_completion",
		"state_transition",
		"churn_reduction",
		"session_increase",
	}

	prompt := promptui.Select{
		Label: "Primary success metric",
		Items: metrics,
		Size:  5,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}

	return metrics[idx], nil
}

func validMetric(m string) bool {
	switch store.PrimaryMetric(m) {
	case store.MetricClickThroughRate, store.MetricActionCompletion,
		store.MetricStateTransition, store.MetricChurnReduction, store.MetricSessionIncrease:
		return true
	}
	return false
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
