package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifecyclelab/intervene/internal/stats"
)

func TestWilsonInterval_ZeroShown(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0)
	assert.Equal(t, 0.0, lower)
	assert.Equal(t, 0.0, upper)
}

func TestWilsonInterval_ContainsObservedRate(t *testing.T) {
	lower, upper := stats.WilsonInterval(25, 100)
	assert.Less(t, lower, 25.0)
	assert.Greater(t, upper, 25.0)
	assert.Greater(t, lower, 0.0)
	assert.Less(t, upper, 100.0)
}

func TestWilsonInterval_KnownValue(t *testing.T) {
	// 50/100 at z=1.96 is the textbook case: roughly [40.4, 59.6].
	lower, upper := stats.WilsonInterval(50, 100)
	assert.InDelta(t, 40.38, lower, 0.05)
	assert.InDelta(t, 59.62, upper, 0.05)
}

func TestWilsonInterval_ClampedAtExtremes(t *testing.T) {
	lower, _ := stats.WilsonInterval(0, 10)
	assert.GreaterOrEqual(t, lower, 0.0)

	_, upper := stats.WilsonInterval(10, 10)
	assert.LessOrEqual(t, upper, 100.0)
}

func TestWilsonInterval_NarrowsWithSampleSize(t *testing.T) {
	lowSmall, highSmall := stats.WilsonInterval(5, 20)
	lowBig, highBig := stats.WilsonInterval(250, 1000)

	assert.Greater(t, highSmall-lowSmall, highBig-lowBig)
}
