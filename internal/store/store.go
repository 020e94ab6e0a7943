package store

import (
	"context"
	"time"
)

// Store defines the interface for experiment storage operations
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ListActiveExperiments(ctx context.Context, lifecycleState string) ([]*Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus) error
	UpdateResultsSummary(ctx context.Context, id string, summary *ResultsSummary) error

	// Assignment operations
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id string) (*Assignment, error)
	GetAssignmentByTestAndUser(ctx context.Context, testID, userID string) (*Assignment, error)
	ListAssignments(ctx context.Context, testID string) ([]*Assignment, error)
	SetInterventionShown(ctx context.Context, id string, shownAt time.Time) error
	SetUserAction(ctx context.Context, id string, action UserAction, actionAt time.Time) error
	AppendConversionEvent(ctx context.Context, id string, ev ConversionEvent) error
	UpdatePostMetrics(ctx context.Context, id string, stateAfter *string, churnAfter *float64, sessionsAfter int) error

	// User lifecycle operations
	GetLifecycleState(ctx context.Context, userID string) (*LifecycleState, error)
	PutLifecycleState(ctx context.Context, ls *LifecycleState) error
	GetRetentionState(ctx context.Context, userID string) (*RetentionState, error)
	PutRetentionState(ctx context.Context, rs *RetentionState) error

	// Lifecycle
	Close() error
}
