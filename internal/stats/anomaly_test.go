package stats_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecyclelab/intervene/internal/stats"
)

func variantWithDays(rates []float64, shown int) stats.VariantResult {
	v := stats.VariantResult{VariantID: "v", Name: "V"}
	for i, r := range rates {
		v.ConversionsByDay = append(v.ConversionsByDay, stats.DailyConversion{
			Date:           fmt.Sprintf("2026-08-%02d", i+1),
			ConversionRate: r,
			Shown:          shown,
		})
	}
	return v
}

func TestDetectAnomalies_TooFewDays(t *testing.T) {
	v := variantWithDays([]float64{10, 12}, 50)
	assert.Empty(t, stats.DetectAnomalies([]stats.VariantResult{v}))
}

func TestDetectAnomalies_StableSeriesIsClean(t *testing.T) {
	v := variantWithDays([]float64{10, 11, 9, 10, 10, 11, 9}, 50)
	assert.Empty(t, stats.DetectAnomalies([]stats.VariantResult{v}))
}

func TestDetectAnomalies_FlagsOutlierSpike(t *testing.T) {
	// Ten flat days plus one extreme one pushes that day just past three
	// standard deviations. The spike sits mid-series so the trailing days
	// do not also read as a trend.
	rates := []float64{10, 10, 10, 60, 10, 10, 10, 10, 10, 10, 10}
	v := variantWithDays(rates, 50)

	anomalies := stats.DetectAnomalies([]stats.VariantResult{v})
	require.Len(t, anomalies, 1)

	a := anomalies[0]
	assert.Equal(t, "spike", a.Type)
	assert.Equal(t, "warning", a.Severity)
	assert.Equal(t, "2026-08-04", a.Date)
	assert.Greater(t, a.ZScore, 3.0)
	assert.Equal(t, 50, a.SampleSize)
}

func TestDetectAnomalies_IgnoresOutliersWithThinSamples(t *testing.T) {
	rates := []float64{10, 10, 10, 60, 10, 10, 10, 10, 10, 10, 10}
	v := variantWithDays(rates, 5) // below the exposure floor

	assert.Empty(t, stats.DetectAnomalies([]stats.VariantResult{v}))
}

func TestDetectAnomalies_SustainedIncrease(t *testing.T) {
	v := variantWithDays([]float64{10, 12, 15, 18, 22}, 50)

	anomalies := stats.DetectAnomalies([]stats.VariantResult{v})
	require.Len(t, anomalies, 1)

	a := anomalies[0]
	assert.Equal(t, "sustained_increase", a.Type)
	assert.Equal(t, "critical", a.Severity) // 10 -> 22 is a 120% climb
	assert.InDelta(t, 120.0, a.TrendChangePct, 1e-9)
}

func TestDetectAnomalies_SustainedDecrease(t *testing.T) {
	v := variantWithDays([]float64{20, 18, 17, 16, 15}, 50)

	anomalies := stats.DetectAnomalies([]stats.VariantResult{v})
	require.Len(t, anomalies, 1)
	assert.Equal(t, "sustained_decrease", anomalies[0].Type)
	assert.Equal(t, "warning", anomalies[0].Severity)
}

func TestDetectAnomalies_NonMonotonicSeriesIsNotATrend(t *testing.T) {
	v := variantWithDays([]float64{10, 15, 12, 18, 25}, 50)
	assert.Empty(t, stats.DetectAnomalies([]stats.VariantResult{v}))
}

func TestDetectAnomalies_ZeroBaselineTrendSkipped(t *testing.T) {
	v := variantWithDays([]float64{0, 5, 10, 15, 20}, 50)
	assert.Empty(t, stats.DetectAnomalies([]stats.VariantResult{v}))
}
