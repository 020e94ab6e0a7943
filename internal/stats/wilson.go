package stats

import "math"

// z-score for the 95% interval reported on variant rates.
const wilsonZ = 1.96

// WilsonInterval calculates the Wilson score interval for a click-through
// proportion and reports the bounds as percentages. It behaves better than
// the normal approximation on the small samples early experiments produce.
func WilsonInterval(clicked, shown int) (lower, upper float64) {
	if shown == 0 {
		return 0, 0
	}

	z := wilsonZ
	p := float64(clicked) / float64(shown)
	n := float64(shown)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	lower = (center - spread) * 100
	upper = (center + spread) * 100

	if lower < 0 {
		lower = 0
	}
	if upper > 100 {
		upper = 100
	}

	return lower, upper
}
