package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecyclelab/intervene/internal/stats"
	"github.com/lifecyclelab/intervene/internal/store"
)

func twoVariantExperiment(metric store.PrimaryMetric) *store.Experiment {
	return &store.Experiment{
		ID:             "exp-1",
		Name:           "winback",
		LifecycleState: "at_risk",
		Variants: []store.Variant{
			{VariantID: "control", Name: "Control", TrafficAllocation: 50},
			{VariantID: "treatment", Name: "Treatment", TrafficAllocation: 50},
		},
		SuccessMetrics: store.SuccessMetrics{PrimaryMetric: metric},
	}
}

// batch builds count assignments for a variant, the first shown of them
// exposed and the first clicked of those with a click.
func batch(variantID string, count, shown, clicked int, day string) []*store.Assignment {
	assignedAt, _ := time.Parse("2006-01-02", day)

	out := make([]*store.Assignment, count)
	for i := range out {
		a := &store.Assignment{
			ID:                   variantID + "-" + day + "-" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			TestID:               "exp-1",
			VariantID:            variantID,
			AssignedAt:           assignedAt,
			LifecycleStateBefore: "at_risk",
		}
		if i < shown {
			a.InterventionShown = true
		}
		if i < clicked {
			a.UserAction = store.ActionClicked
		}
		out[i] = a
	}
	return out
}

func TestAnalyze_NoAssignments(t *testing.T) {
	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), nil)

	require.Len(t, result.Variants, 2)
	assert.Equal(t, 0, result.TotalAssignments)
	assert.Equal(t, 0, result.Variants[0].TotalAssigned)
	assert.Equal(t, 0.0, result.Variants[0].ConversionRate)
	assert.Equal(t, 0, result.ConfidenceLevel)
	// With everything at zero the first declared variant holds the tie.
	assert.Equal(t, "control", result.WinningVariant)
}

func TestAnalyze_ConversionRateZeroWhenNothingShown(t *testing.T) {
	assignments := batch("control", 10, 0, 0, "2026-08-01")

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	c := result.Variants[0]
	assert.Equal(t, 10, c.TotalAssigned)
	assert.Equal(t, 0, c.InterventionShown)
	assert.Equal(t, 0.0, c.ConversionRate)
	assert.Equal(t, 0.0, c.CILower)
	assert.Equal(t, 0.0, c.CIUpper)
}

func TestAnalyze_TwoProportionSignificance(t *testing.T) {
	// Control 40/200 vs treatment 60/200 gives z near 2.31, inside the
	// 95 band.
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 200, 200, 40, "2026-08-01")...)
	assignments = append(assignments, batch("treatment", 200, 200, 60, "2026-08-01")...)

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	assert.Equal(t, "treatment", result.WinningVariant)
	assert.Equal(t, 95, result.ConfidenceLevel)
	assert.InDelta(t, 50.0, result.ImprovementPercentage, 1e-9) // 20% -> 30%
	assert.Equal(t, 400, result.TotalAssignments)
}

func TestAnalyze_WeakEffectDegradesConfidence(t *testing.T) {
	// Control 50/200 vs treatment 55/200: z near 0.57, below every band.
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 200, 200, 50, "2026-08-01")...)
	assignments = append(assignments, batch("treatment", 200, 200, 55, "2026-08-01")...)

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	assert.Equal(t, "treatment", result.WinningVariant)
	assert.Equal(t, 28, result.ConfidenceLevel) // round(z*50)
}

func TestAnalyze_SmallSampleReportsZeroConfidence(t *testing.T) {
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 20, 20, 2, "2026-08-01")...)
	assignments = append(assignments, batch("treatment", 20, 20, 15, "2026-08-01")...)

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	assert.Equal(t, "treatment", result.WinningVariant)
	assert.Equal(t, 0, result.ConfidenceLevel)
}

func TestAnalyze_ImprovementZeroWhenControlHasNoConversions(t *testing.T) {
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 50, 50, 0, "2026-08-01")...)
	assignments = append(assignments, batch("treatment", 50, 50, 10, "2026-08-01")...)

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	assert.Equal(t, "treatment", result.WinningVariant)
	assert.Equal(t, 0.0, result.ImprovementPercentage)
}

func TestAnalyze_AveragesDilutedByUnrefreshedAssignments(t *testing.T) {
	assignments := batch("control", 4, 4, 0, "2026-08-01")

	// Only half the cohort has post-assignment metrics.
	churn0, churn1 := 0.5, 0.3
	sessions := 8
	assignments[0].ChurnRiskBefore = 0.7
	assignments[0].ChurnRiskAfter = &churn0
	assignments[1].ChurnRiskBefore = 0.7
	assignments[1].ChurnRiskAfter = &churn1
	assignments[1].Sessions7DaysBefore = 3
	assignments[1].Sessions7DaysAfter = &sessions

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	c := result.Variants[0]
	// (-0.2 + -0.4) over all 4 assignments, not over the 2 refreshed ones.
	assert.InDelta(t, -0.15, c.AvgChurnRiskChange, 1e-9)
	assert.InDelta(t, 1.25, c.AvgSessionsChange, 1e-9)
}

func TestAnalyze_StateTransitions(t *testing.T) {
	assignments := batch("control", 3, 3, 0, "2026-08-01")

	same := "at_risk"
	moved := "active"
	assignments[0].LifecycleStateAfter = &same  // no transition
	assignments[1].LifecycleStateAfter = &moved // transitioned
	// assignments[2] has no refreshed state and counts as a transition

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	assert.Equal(t, 2, result.Variants[0].StateTransitions)
}

func TestAnalyze_WinnerByChurnReduction(t *testing.T) {
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 2, 0, 0, "2026-08-01")...)
	assignments = append(assignments, batch("treatment", 2, 0, 0, "2026-08-01")...)

	up, down := 0.9, 0.2
	for _, a := range assignments {
		a.ChurnRiskBefore = 0.5
	}
	assignments[0].ChurnRiskAfter = &up   // control got worse
	assignments[2].ChurnRiskAfter = &down // treatment improved

	result := stats.Analyze(twoVariantExperiment(store.MetricChurnReduction), assignments)

	assert.Equal(t, "treatment", result.WinningVariant)
}

func TestAnalyze_DailySeriesSortedByDate(t *testing.T) {
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 10, 10, 5, "2026-08-03")...)
	assignments = append(assignments, batch("control", 10, 10, 2, "2026-08-01")...)
	assignments = append(assignments, batch("control", 10, 10, 8, "2026-08-02")...)

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	days := result.Variants[0].ConversionsByDay
	require.Len(t, days, 3)
	assert.Equal(t, "2026-08-01", days[0].Date)
	assert.Equal(t, "2026-08-02", days[1].Date)
	assert.Equal(t, "2026-08-03", days[2].Date)
	assert.InDelta(t, 20.0, days[0].ConversionRate, 1e-9)
	assert.InDelta(t, 80.0, days[1].ConversionRate, 1e-9)
	assert.Equal(t, 10, days[0].Shown)
}

func TestAnalyze_SkipsUnknownVariantIDs(t *testing.T) {
	var assignments []*store.Assignment
	assignments = append(assignments, batch("control", 5, 5, 1, "2026-08-01")...)
	assignments = append(assignments, batch("retired-variant", 5, 5, 5, "2026-08-01")...)

	result := stats.Analyze(twoVariantExperiment(store.MetricClickThroughRate), assignments)

	require.Len(t, result.Variants, 2)
	assert.Equal(t, 5, result.Variants[0].TotalAssigned)
	assert.Equal(t, 0, result.Variants[1].TotalAssigned)
}
