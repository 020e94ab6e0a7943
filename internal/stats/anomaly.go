package stats

import "math"

// Anomaly flags an unexpected shift in a variant's daily conversion
// performance.
type Anomaly struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"variant_name"`
	Date           string  `json:"date"`
	Type           string  `json:"type"`     // spike, drop, sustained_increase, sustained_decrease
	Severity       string  `json:"severity"` // warning or critical
	ConversionRate float64 `json:"conversion_rate,omitempty"`
	ExpectedRate   float64 `json:"expected_rate,omitempty"`
	ZScore         float64 `json:"z_score,omitempty"`
	TrendChangePct float64 `json:"trend_change_pct,omitempty"`
	SampleSize     int     `json:"sample_size,omitempty"`
}

// Daily-rate outliers need at least this many exposures to be flagged.
const minOutlierSample = 10

// DetectAnomalies scans each variant's daily conversion series for outlier
// days (more than three standard deviations from the variant's mean rate)
// and for sustained monotonic trends over the last five days.
func DetectAnomalies(variants []VariantResult) []Anomaly {
	var anomalies []Anomaly

	for _, v := range variants {
		days := v.ConversionsByDay
		if len(days) < 3 {
			continue
		}

		mean := 0.0
		for _, d := range days {
			mean += d.ConversionRate
		}
		mean /= float64(len(days))

		variance := 0.0
		for _, d := range days {
			variance += math.Pow(d.ConversionRate-mean, 2)
		}
		variance /= float64(len(days))
		stddev := math.Sqrt(variance)

		if stddev > 0 {
			for _, d := range days {
				z := math.Abs((d.ConversionRate - mean) / stddev)
				if z <= 3 || d.Shown < minOutlierSample {
					continue
				}

				a := Anomaly{
					VariantID:      v.VariantID,
					Name:           v.Name,
					Date:           d.Date,
					ConversionRate: d.ConversionRate,
					ExpectedRate:   mean,
					ZScore:         z,
					Severity:       "warning",
					Type:           "drop",
					SampleSize:     d.Shown,
				}
				if z > 4 {
					a.Severity = "critical"
				}
				if d.ConversionRate > mean {
					a.Type = "spike"
				}
				anomalies = append(anomalies, a)
			}
		}

		if trend := detectTrend(v); trend != nil {
			anomalies = append(anomalies, *trend)
		}
	}

	return anomalies
}

// detectTrend reports a sustained monotonic change of more than 20% across
// the last five days, or nil.
func detectTrend(v VariantResult) *Anomaly {
	days := v.ConversionsByDay
	if len(days) < 5 {
		return nil
	}

	recent := days[len(days)-5:]
	increasing, decreasing := true, true
	for i := 1; i < len(recent); i++ {
		if recent[i].ConversionRate < recent[i-1].ConversionRate {
			increasing = false
		}
		if recent[i].ConversionRate > recent[i-1].ConversionRate {
			decreasing = false
		}
	}
	if !increasing && !decreasing {
		return nil
	}
	if recent[0].ConversionRate == 0 {
		return nil
	}

	change := (recent[len(recent)-1].ConversionRate - recent[0].ConversionRate) / recent[0].ConversionRate * 100
	if math.Abs(change) <= 20 {
		return nil
	}

	a := &Anomaly{
		VariantID:      v.VariantID,
		Name:           v.Name,
		Date:           recent[len(recent)-1].Date,
		Type:           "sustained_increase",
		Severity:       "warning",
		TrendChangePct: change,
	}
	if decreasing {
		a.Type = "sustained_decrease"
	}
	if math.Abs(change) > 50 {
		a.Severity = "critical"
	}

	return a
}
