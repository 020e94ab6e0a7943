package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/insights"
	"github.com/lifecyclelab/intervene/internal/store"
)

var withAI bool

var resultsCmd = &cobra.Command{
	Use:   "results <experiment>",
	Short: "Analyze an experiment and show detailed results",
	Long: `Run the analysis pass over an experiment's assignments: per-variant
aggregates, winner on the primary metric, significance against control, and
anomaly detection. The results summary is persisted onto the experiment.

With --ai and IV_OPENAI_API_KEY set, an LLM verdict is printed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(&withAI, "ai", false, "include an AI-generated verdict")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withEngine(func(s *store.SQLiteStore, eng *engine.Service) error {
		ctx := context.Background()

		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		analysis, err := eng.AnalyzeTest(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to analyze experiment: %w", err)
		}
		result := analysis.Result

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("SEGMENT: %s\n", exp.LifecycleState)
		fmt.Printf("STATUS: %s\n", exp.Status)
		fmt.Printf("METRIC: %s\n", exp.SuccessMetrics.PrimaryMetric)
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Println()

		fmt.Println("VARIANT           ASSIGNED  SHOWN   CLICKED  RATE     95% CI")
		fmt.Println(strings.Repeat("-", 66))

		for _, v := range result.Variants {
			indicator := ""
			if v.VariantID == result.WinningVariant && len(result.Variants) > 1 {
				indicator = " <- WINNER"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower, v.CIUpper)
			if v.InterventionShown == 0 {
				ciStr = "N/A"
			}

			name := v.VariantID
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-8d  %-6d  %-7d  %-6.1f%%  %s%s\n",
				name, v.TotalAssigned, v.InterventionShown, v.Clicked,
				v.ConversionRate, ciStr, indicator)
		}

		fmt.Println()
		fmt.Printf("Winner: %s\n", result.WinningVariant)
		fmt.Printf("Confidence: %d%%\n", result.ConfidenceLevel)
		fmt.Printf("Improvement over control: %.1f%%\n", result.ImprovementPercentage)

		if len(analysis.Anomalies) > 0 {
			fmt.Println()
			fmt.Printf("Anomalies (%d):\n", len(analysis.Anomalies))
			for _, a := range analysis.Anomalies {
				fmt.Printf("  [%s] %s %s on %s\n", a.Severity, a.VariantID, a.Type, a.Date)
			}
		}

		if analysis.MVT != nil && analysis.MVT.HasSignificantInteractions {
			fmt.Println()
			fmt.Println("Significant variant interactions detected; see analyze API output for details.")
		}

		if withAI {
			return printAIVerdict(ctx, exp, analysis)
		}

		return nil
	})
}

func printAIVerdict(ctx context.Context, exp *store.Experiment, analysis *engine.AnalysisResult) error {
	apiKey := os.Getenv("IV_OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("--ai requires IV_OPENAI_API_KEY or OPENAI_API_KEY")
	}

	insight, err := insights.New(apiKey).Analyze(ctx, exp, analysis.Result)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("AI VERDICT")
	fmt.Println(strings.Repeat("-", 66))
	fmt.Printf("Recommendation: %s\n", insight.Recommendation)
	fmt.Printf("Significant: %v (confidence %.0f%%)\n", insight.IsSignificant, insight.ConfidenceLevel)
	if insight.Reasoning != "" {
		fmt.Printf("Reasoning: %s\n", insight.Reasoning)
	}

	return nil
}
