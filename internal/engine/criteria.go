package engine

import "github.com/lifecyclelab/intervene/internal/store"

// IneligibilityReason is a machine-readable reason code for a failed
// eligibility check. Empty when the user is eligible.
type IneligibilityReason string

const (
	ReasonMinDaysNotMet    IneligibilityReason = "min_days_not_met"
	ReasonMaxDaysExceeded  IneligibilityReason = "max_days_exceeded"
	ReasonChurnRiskTooLow  IneligibilityReason = "churn_risk_too_low"
	ReasonChurnRiskTooHigh IneligibilityReason = "churn_risk_too_high"
)

// UserSnapshot is the slice of a user's lifecycle state that targeting
// criteria are evaluated against.
type UserSnapshot struct {
	DaysInCurrentState int
	ChurnRiskScore     float64
}

// EvaluateCriteria checks the snapshot against the experiment's targeting
// bounds. Checks run in a fixed order and the first failure wins. A nil or
// partially populated criteria object skips the unset checks.
func EvaluateCriteria(criteria *store.TargetCriteria, snap UserSnapshot) (bool, IneligibilityReason) {
	if criteria == nil {
		return true, ""
	}

	if criteria.MinDaysInState != nil && snap.DaysInCurrentState < *criteria.MinDaysInState {
		return false, ReasonMinDaysNotMet
	}
	if criteria.MaxDaysInState != nil && snap.DaysInCurrentState > *criteria.MaxDaysInState {
		return false, ReasonMaxDaysExceeded
	}
	if criteria.ChurnRiskMin != nil && snap.ChurnRiskScore < *criteria.ChurnRiskMin {
		return false, ReasonChurnRiskTooLow
	}
	if criteria.ChurnRiskMax != nil && snap.ChurnRiskScore > *criteria.ChurnRiskMax {
		return false, ReasonChurnRiskTooHigh
	}

	return true, ""
}
