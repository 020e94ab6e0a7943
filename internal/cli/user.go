package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/store"
)

func init() {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user lifecycle and retention records",
		Long: `Write the per-user lifecycle and retention records the engine reads
during assignment and metric refresh. In a full deployment these are owned
by the upstream lifecycle pipeline; the commands exist for standalone
setups and testing.`,
	}
	userCmd.AddCommand(newSetStateCmd())
	userCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(userCmd)
}

func newSetStateCmd() *cobra.Command {
	var (
		state     string
		churnRisk float64
		entered   string
	)

	cmd := &cobra.Command{
		Use:   "set-state <user-id>",
		Short: "Set a user's lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enteredAt := time.Now()
			if entered != "" {
				t, err := time.Parse("2006-01-02", entered)
				if err != nil {
					return fmt.Errorf("invalid entered date: %w", err)
				}
				enteredAt = t
			}

			return withStore(func(s *store.SQLiteStore) error {
				err := s.PutLifecycleState(context.Background(), &store.LifecycleState{
					UserID:         args[0],
					CurrentState:   state,
					StateEnteredAt: enteredAt,
					ChurnRiskScore: churnRisk,
				})
				if err != nil {
					return err
				}

				fmt.Printf("User %s: state=%s, entered=%s, churn_risk=%.2f\n",
					args[0], state, enteredAt.Format("2006-01-02"), churnRisk)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "lifecycle state (required)")
	cmd.Flags().Float64Var(&churnRisk, "churn-risk", 0, "churn risk score")
	cmd.Flags().StringVar(&entered, "entered", "", "date the state was entered, YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("state")

	return cmd
}

func newSessionsCmd() *cobra.Command {
	var (
		week     string
		sessions int
	)

	cmd := &cobra.Command{
		Use:   "sessions <user-id>",
		Short: "Append a weekly session count to a user's retention record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if week == "" {
				week = time.Now().Format("2006-01-02")
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				rs, err := s.GetRetentionState(ctx, args[0])
				if err != nil {
					if !errors.Is(err, store.ErrNotFound) {
						return err
					}
					rs = &store.RetentionState{UserID: args[0]}
				}

				rs.WeeklyEngagement = append(rs.WeeklyEngagement, store.WeeklyEngagement{
					WeekStart: week,
					Sessions:  sessions,
				})

				if err := s.PutRetentionState(ctx, rs); err != nil {
					return err
				}

				fmt.Printf("User %s: %d sessions for week of %s (%d weeks on record)\n",
					args[0], sessions, week, len(rs.WeeklyEngagement))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&week, "week", "", "week start date, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&sessions, "count", 0, "session count for the week")

	return cmd
}
