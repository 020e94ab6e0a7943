package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/store"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestEvaluateCriteria_NilCriteria(t *testing.T) {
	eligible, reason := engine.EvaluateCriteria(nil, engine.UserSnapshot{})
	assert.True(t, eligible)
	assert.Empty(t, reason)
}

func TestEvaluateCriteria_AllBoundsPass(t *testing.T) {
	criteria := &store.TargetCriteria{
		MinDaysInState: intPtr(7),
		MaxDaysInState: intPtr(30),
		ChurnRiskMin:   floatPtr(0.5),
		ChurnRiskMax:   floatPtr(0.9),
	}
	snap := engine.UserSnapshot{DaysInCurrentState: 10, ChurnRiskScore: 0.7}

	eligible, reason := engine.EvaluateCriteria(criteria, snap)
	assert.True(t, eligible)
	assert.Empty(t, reason)
}

func TestEvaluateCriteria_BoundaryValuesPass(t *testing.T) {
	criteria := &store.TargetCriteria{
		MinDaysInState: intPtr(7),
		MaxDaysInState: intPtr(30),
		ChurnRiskMin:   floatPtr(0.5),
		ChurnRiskMax:   floatPtr(0.9),
	}

	// Exact bounds are inclusive on both ends.
	eligible, _ := engine.EvaluateCriteria(criteria, engine.UserSnapshot{DaysInCurrentState: 7, ChurnRiskScore: 0.5})
	assert.True(t, eligible)

	eligible, _ = engine.EvaluateCriteria(criteria, engine.UserSnapshot{DaysInCurrentState: 30, ChurnRiskScore: 0.9})
	assert.True(t, eligible)
}

func TestEvaluateCriteria_Failures(t *testing.T) {
	criteria := &store.TargetCriteria{
		MinDaysInState: intPtr(7),
		MaxDaysInState: intPtr(30),
		ChurnRiskMin:   floatPtr(0.5),
		ChurnRiskMax:   floatPtr(0.9),
	}

	tests := []struct {
		name   string
		snap   engine.UserSnapshot
		reason engine.IneligibilityReason
	}{
		{"below min days", engine.UserSnapshot{DaysInCurrentState: 6, ChurnRiskScore: 0.7}, engine.ReasonMinDaysNotMet},
		{"above max days", engine.UserSnapshot{DaysInCurrentState: 31, ChurnRiskScore: 0.7}, engine.ReasonMaxDaysExceeded},
		{"below churn min", engine.UserSnapshot{DaysInCurrentState: 10, ChurnRiskScore: 0.4}, engine.ReasonChurnRiskTooLow},
		{"above churn max", engine.UserSnapshot{DaysInCurrentState: 10, ChurnRiskScore: 0.95}, engine.ReasonChurnRiskTooHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eligible, reason := engine.EvaluateCriteria(criteria, tt.snap)
			assert.False(t, eligible)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEvaluateCriteria_FirstFailureWins(t *testing.T) {
	// Snapshot fails both the days and churn checks; the days check runs first.
	criteria := &store.TargetCriteria{
		MinDaysInState: intPtr(7),
		ChurnRiskMin:   floatPtr(0.5),
	}
	snap := engine.UserSnapshot{DaysInCurrentState: 2, ChurnRiskScore: 0.1}

	eligible, reason := engine.EvaluateCriteria(criteria, snap)
	assert.False(t, eligible)
	assert.Equal(t, engine.ReasonMinDaysNotMet, reason)
}

func TestEvaluateCriteria_PartialCriteria(t *testing.T) {
	// Only a churn ceiling; day counts are irrelevant.
	criteria := &store.TargetCriteria{ChurnRiskMax: floatPtr(0.9)}

	eligible, _ := engine.EvaluateCriteria(criteria, engine.UserSnapshot{DaysInCurrentState: 500, ChurnRiskScore: 0.1})
	assert.True(t, eligible)

	eligible, reason := engine.EvaluateCriteria(criteria, engine.UserSnapshot{ChurnRiskScore: 0.95})
	assert.False(t, eligible)
	assert.Equal(t, engine.ReasonChurnRiskTooHigh, reason)
}
