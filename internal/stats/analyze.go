package stats

import (
	"math"
	"sort"

	"github.com/lifecyclelab/intervene/internal/store"
)

// VariantResult contains aggregated outcomes for a single variant.
type VariantResult struct {
	VariantID string `json:"variant_id"`
	Name      string `json:"variant_name"`

	TotalAssigned     int `json:"total_assigned"`
	InterventionShown int `json:"intervention_shown"`
	Clicked           int `json:"clicked"`
	Completed         int `json:"completed"`
	Dismissed         int `json:"dismissed"`

	// Average change metrics are divided by TotalAssigned, not by the count
	// of assignments carrying both before and after values. Variants with
	// many unrefreshed assignments therefore show a diluted average.
	AvgChurnRiskChange float64 `json:"avg_churn_risk_change"`
	AvgSessionsChange  float64 `json:"avg_sessions_change"`

	StateTransitions int `json:"state_transitions"`

	ConversionRate float64 `json:"conversion_rate"` // percent, 0 when nothing shown
	CILower        float64 `json:"ci_lower"`        // 95% Wilson bounds on the rate, percent
	CIUpper        float64 `json:"ci_upper"`

	ConversionsByDay []DailyConversion `json:"conversions_by_day"`
}

// DailyConversion is one day of exposure and click-through for a variant,
// keyed by assignment date.
type DailyConversion struct {
	Date           string  `json:"date"`
	ConversionRate float64 `json:"conversion_rate"`
	Shown          int     `json:"shown"`
}

// Result represents the frequentist analysis of an experiment.
type Result struct {
	Variants              []VariantResult `json:"variant_results"` // declared variant order
	WinningVariant        string          `json:"winning_variant"`
	ConfidenceLevel       int             `json:"confidence_level"`
	ImprovementPercentage float64         `json:"improvement_percentage"`
	TotalAssignments      int             `json:"total_assignments"`
}

// minSampleSize is the per-variant assignment count below which no
// significance test is attempted.
const minSampleSize = 30

// Analyze aggregates assignments per variant in a single pass, picks the
// winner on the experiment's primary metric and scores its significance
// against the control (the first declared variant). Assignments referencing
// unknown variant ids are skipped.
func Analyze(exp *store.Experiment, assignments []*store.Assignment) *Result {
	type dailyCount struct {
		shown   int
		clicked int
	}

	results := make([]VariantResult, len(exp.Variants))
	index := make(map[string]int, len(exp.Variants))
	daily := make(map[string]map[string]*dailyCount, len(exp.Variants))
	for i, v := range exp.Variants {
		results[i] = VariantResult{VariantID: v.VariantID, Name: v.Name}
		index[v.VariantID] = i
		daily[v.VariantID] = make(map[string]*dailyCount)
	}

	for _, a := range assignments {
		i, ok := index[a.VariantID]
		if !ok {
			continue
		}
		r := &results[i]
		r.TotalAssigned++

		if a.InterventionShown {
			r.InterventionShown++
		}
		switch a.UserAction {
		case store.ActionClicked:
			r.Clicked++
		case store.ActionCompleted:
			r.Completed++
		case store.ActionDismissed:
			r.Dismissed++
		}

		if a.ChurnRiskAfter != nil {
			r.AvgChurnRiskChange += *a.ChurnRiskAfter - a.ChurnRiskBefore
		}
		if a.Sessions7DaysAfter != nil {
			r.AvgSessionsChange += float64(*a.Sessions7DaysAfter - a.Sessions7DaysBefore)
		}
		if a.LifecycleStateAfter == nil || *a.LifecycleStateAfter != a.LifecycleStateBefore {
			r.StateTransitions++
		}

		day := a.AssignedAt.Format("2006-01-02")
		d := daily[a.VariantID][day]
		if d == nil {
			d = &dailyCount{}
			daily[a.VariantID][day] = d
		}
		if a.InterventionShown {
			d.shown++
		}
		if a.UserAction == store.ActionClicked {
			d.clicked++
		}
	}

	for i := range results {
		r := &results[i]
		if r.TotalAssigned > 0 {
			r.AvgChurnRiskChange /= float64(r.TotalAssigned)
			r.AvgSessionsChange /= float64(r.TotalAssigned)
		}
		if r.InterventionShown > 0 {
			r.ConversionRate = float64(r.Clicked) / float64(r.InterventionShown) * 100
		}
		r.CILower, r.CIUpper = WilsonInterval(r.Clicked, r.InterventionShown)

		days := daily[r.VariantID]
		r.ConversionsByDay = make([]DailyConversion, 0, len(days))
		for date, d := range days {
			rate := 0.0
			if d.shown > 0 {
				rate = float64(d.clicked) / float64(d.shown) * 100
			}
			r.ConversionsByDay = append(r.ConversionsByDay, DailyConversion{
				Date:           date,
				ConversionRate: rate,
				Shown:          d.shown,
			})
		}
		sort.Slice(r.ConversionsByDay, func(a, b int) bool {
			return r.ConversionsByDay[a].Date < r.ConversionsByDay[b].Date
		})
	}

	winner := pickWinner(exp.SuccessMetrics.PrimaryMetric, results)

	var control, winning *VariantResult
	if len(results) > 0 {
		control = &results[0]
	}
	if i, ok := index[winner]; ok {
		winning = &results[i]
	}

	improvement := 0.0
	if control != nil && winning != nil && winner != control.VariantID && control.ConversionRate > 0 {
		improvement = (winning.ConversionRate - control.ConversionRate) / control.ConversionRate * 100
	}

	return &Result{
		Variants:              results,
		WinningVariant:        winner,
		ConfidenceLevel:       confidenceLevel(control, winning),
		ImprovementPercentage: improvement,
		TotalAssignments:      len(assignments),
	}
}

// pickWinner maps the primary metric to a per-variant score and returns the
// variant with the strictly greatest one. Ties keep the earlier variant in
// declared order.
func pickWinner(metric store.PrimaryMetric, results []VariantResult) string {
	winner := ""
	best := math.Inf(-1)

	for _, r := range results {
		var score float64
		switch metric {
		case store.MetricActionCompletion:
			score = float64(r.Completed)
		case store.MetricStateTransition:
			score = float64(r.StateTransitions)
		case store.MetricChurnReduction:
			score = -r.AvgChurnRiskChange // lower churn is better
		case store.MetricSessionIncrease:
			score = r.AvgSessionsChange
		default: // click_through_rate
			score = r.ConversionRate
		}

		if score > best {
			best = score
			winner = r.VariantID
		}
	}

	return winner
}

// confidenceLevel runs a two-proportion z-test on click-through between the
// control and winning variants and maps the z statistic onto a discrete
// confidence label. Below the 90 band the label degrades to round(z*50) as a
// rough approximation. Small samples and empty exposure report 0.
func confidenceLevel(control, winner *VariantResult) int {
	if control == nil || winner == nil {
		return 0
	}
	if control.TotalAssigned < minSampleSize || winner.TotalAssigned < minSampleSize {
		return 0
	}

	n1 := control.InterventionShown
	n2 := winner.InterventionShown
	if n1 == 0 || n2 == 0 {
		return 0
	}

	p1 := float64(control.Clicked) / float64(n1)
	p2 := float64(winner.Clicked) / float64(n2)

	pooled := float64(control.Clicked+winner.Clicked) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0
	}

	z := math.Abs(p1-p2) / se

	switch {
	case z > 2.576:
		return 99
	case z > 1.96:
		return 95
	case z > 1.645:
		return 90
	default:
		return int(math.Round(z * 50))
	}
}
