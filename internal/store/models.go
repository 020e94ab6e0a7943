package store

import "time"

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

// PrimaryMetric names the scalar an experiment is judged on.
type PrimaryMetric string

const (
	MetricClickThroughRate PrimaryMetric = "click_through_rate"
	MetricActionCompletion PrimaryMetric = "action_completion"
	MetricStateTransition  PrimaryMetric = "state_transition"
	MetricChurnReduction   PrimaryMetric = "churn_reduction"
	MetricSessionIncrease  PrimaryMetric = "session_increase"
)

// UserAction is the most recent recorded reaction to an intervention.
// Empty string means no action has been recorded yet.
type UserAction string

const (
	ActionClicked   UserAction = "clicked"
	ActionCompleted UserAction = "completed"
	ActionDismissed UserAction = "dismissed"
)

type Variant struct {
	VariantID         string  `json:"variant_id"`
	Name              string  `json:"name"`
	TrafficAllocation float64 `json:"traffic_allocation"` // 0-100, need not sum to 100
}

// TargetCriteria gates assignment on the user's lifecycle snapshot.
// Nil fields are unset and skip their check.
type TargetCriteria struct {
	MinDaysInState *int     `json:"min_days_in_state,omitempty"`
	MaxDaysInState *int     `json:"max_days_in_state,omitempty"`
	ChurnRiskMin   *float64 `json:"churn_risk_min,omitempty"`
	ChurnRiskMax   *float64 `json:"churn_risk_max,omitempty"`
}

type SuccessMetrics struct {
	PrimaryMetric PrimaryMetric `json:"primary_metric"`
}

// ResultsSummary is replaced wholesale by each analysis run.
type ResultsSummary struct {
	TotalUsersAssigned    int      `json:"total_users_assigned"`
	WinningVariant        string   `json:"winning_variant"`
	ConfidenceLevel       int      `json:"confidence_level"`
	ImprovementPercentage float64  `json:"improvement_percentage"`
	BayesianProbability   *float64 `json:"bayesian_probability,omitempty"`
	AnomaliesDetected     int      `json:"anomalies_detected"`
}

type Experiment struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	LifecycleState string           `json:"lifecycle_state"` // user-segment tag the experiment targets
	Status         ExperimentStatus `json:"status"`
	StartDate      *time.Time       `json:"start_date,omitempty"`
	EndDate        *time.Time       `json:"end_date,omitempty"`
	Variants       []Variant        `json:"variants"` // declared order, first is control
	TargetCriteria *TargetCriteria  `json:"target_criteria,omitempty"`
	SuccessMetrics SuccessMetrics   `json:"success_metrics"`
	ResultsSummary *ResultsSummary  `json:"results_summary,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type ConversionEvent struct {
	EventType  string    `json:"event_type"`
	EventValue float64   `json:"event_value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Assignment binds one user to one variant of one experiment.
// (TestID, UserID) is unique; the row is created once and mutated in place.
type Assignment struct {
	ID        string `json:"id"`
	TestID    string `json:"test_id"`
	UserID    string `json:"user_id"`
	VariantID string `json:"variant_id"`

	AssignedAt time.Time `json:"assigned_at"`

	LifecycleStateBefore string  `json:"lifecycle_state_before"`
	ChurnRiskBefore      float64 `json:"churn_risk_before"`
	Sessions7DaysBefore  int     `json:"sessions_7days_before"`

	InterventionShown bool       `json:"intervention_shown"`
	ShownAt           *time.Time `json:"shown_at,omitempty"`

	UserAction UserAction `json:"user_action,omitempty"`
	ActionAt   *time.Time `json:"action_at,omitempty"`

	ConversionEvents []ConversionEvent `json:"conversion_events,omitempty"`

	LifecycleStateAfter *string  `json:"lifecycle_state_after,omitempty"`
	ChurnRiskAfter      *float64 `json:"churn_risk_after,omitempty"`
	Sessions7DaysAfter  *int     `json:"sessions_7days_after,omitempty"`
}

// LifecycleState is the per-user lifecycle snapshot maintained upstream.
type LifecycleState struct {
	UserID         string
	CurrentState   string
	StateEnteredAt time.Time
	ChurnRiskScore float64
}

type WeeklyEngagement struct {
	WeekStart string `json:"week_start"`
	Sessions  int    `json:"sessions"`
}

// RetentionState holds the user's weekly engagement history. The session
// metric captured on assignments is the last entry's count, 0 when absent.
type RetentionState struct {
	UserID           string
	WeeklyEngagement []WeeklyEngagement
}

// LatestSessions returns the most recent weekly session count, or 0.
func (r *RetentionState) LatestSessions() int {
	if r == nil || len(r.WeeklyEngagement) == 0 {
		return 0
	}
	return r.WeeklyEngagement[len(r.WeeklyEngagement)-1].Sessions
}
