package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifecyclelab/intervene/internal/stats"
	"github.com/lifecyclelab/intervene/internal/store"
)

// ErrNoLifecycleState means the user has no lifecycle snapshot on record,
// so eligibility cannot be evaluated.
var ErrNoLifecycleState = errors.New("no lifecycle state on record")

// Service orchestrates assignment, outcome tracking and analysis over the
// storage backend. It holds no mutable state between calls.
type Service struct {
	store    store.Store
	selector *Selector
	now      func() time.Time
}

func New(s store.Store, selector *Selector) *Service {
	if selector == nil {
		selector = NewSelector(nil)
	}
	return &Service{
		store:    s,
		selector: selector,
		now:      time.Now,
	}
}

// AssignmentResult is a discriminated outcome of Assign. Exactly one of the
// three shapes holds: already assigned (no side effects), not assigned with
// a reason, or newly assigned with the chosen variant.
type AssignmentResult struct {
	AlreadyAssigned bool
	Assigned        bool
	Reason          IneligibilityReason
	Assignment      *store.Assignment
	Variant         *store.Variant
}

// Assign enrolls a user into an experiment. Repeated calls for the same
// (testID, userID) pair return the existing assignment and never re-roll
// the variant.
func (s *Service) Assign(ctx context.Context, testID, userID string) (*AssignmentResult, error) {
	existing, err := s.store.GetAssignmentByTestAndUser(ctx, testID, userID)
	if err == nil {
		return &AssignmentResult{AlreadyAssigned: true, Assignment: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up assignment: %w", err)
	}

	exp, err := s.store.GetExperiment(ctx, testID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("experiment %s: %w", testID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	ls, err := s.store.GetLifecycleState(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoLifecycleState
		}
		return nil, fmt.Errorf("failed to get lifecycle state: %w", err)
	}

	now := s.now()
	snap := UserSnapshot{
		DaysInCurrentState: int(now.Sub(ls.StateEnteredAt).Hours() / 24),
		ChurnRiskScore:     ls.ChurnRiskScore,
	}

	eligible, reason := EvaluateCriteria(exp.TargetCriteria, snap)
	if !eligible {
		return &AssignmentResult{Assigned: false, Reason: reason}, nil
	}

	variant := s.selector.Pick(exp.Variants)

	sessions, err := s.latestSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	assignment := &store.Assignment{
		ID:                   uuid.NewString(),
		TestID:               testID,
		UserID:               userID,
		VariantID:            variant.VariantID,
		AssignedAt:           now,
		LifecycleStateBefore: ls.CurrentState,
		ChurnRiskBefore:      ls.ChurnRiskScore,
		Sessions7DaysBefore:  sessions,
	}

	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a concurrent race; the winner's row is authoritative.
			existing, lookupErr := s.store.GetAssignmentByTestAndUser(ctx, testID, userID)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to re-read assignment after conflict: %w", lookupErr)
			}
			return &AssignmentResult{AlreadyAssigned: true, Assignment: existing}, nil
		}
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	return &AssignmentResult{Assigned: true, Assignment: assignment, Variant: &variant}, nil
}

// ActiveTestsForState lists experiments targeting the given lifecycle state
// that are active and inside their date window.
func (s *Service) ActiveTestsForState(ctx context.Context, lifecycleState string) ([]*store.Experiment, error) {
	exps, err := s.store.ListActiveExperiments(ctx, lifecycleState)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := exps[:0]
	for _, exp := range exps {
		if exp.StartDate != nil && exp.StartDate.After(now) {
			continue
		}
		if exp.EndDate != nil && exp.EndDate.Before(now) {
			continue
		}
		active = append(active, exp)
	}

	return active, nil
}

// AnalysisResult bundles the frequentist analysis with the Bayesian,
// interaction-effect and anomaly supplements.
type AnalysisResult struct {
	Result    *stats.Result           `json:"result"`
	Bayesian  []stats.BayesianVariant `json:"bayesian"`
	MVT       *stats.MVTResult        `json:"mvt,omitempty"`
	Anomalies []stats.Anomaly         `json:"anomalies,omitempty"`
}

// AnalyzeTest aggregates all assignments for an experiment, determines the
// winner and persists the results summary onto the experiment record. The
// summary is replaced wholesale; assignments are never mutated.
func (s *Service) AnalyzeTest(ctx context.Context, testID string) (*AnalysisResult, error) {
	exp, err := s.store.GetExperiment(ctx, testID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("experiment %s: %w", testID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	assignments, err := s.store.ListAssignments(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	result := stats.Analyze(exp, assignments)
	bayesian := stats.BayesianAnalysis(result.Variants, nil)
	mvt := stats.InteractionEffects(result.Variants)
	anomalies := stats.DetectAnomalies(result.Variants)

	summary := &store.ResultsSummary{
		TotalUsersAssigned:    result.TotalAssignments,
		WinningVariant:        result.WinningVariant,
		ConfidenceLevel:       result.ConfidenceLevel,
		ImprovementPercentage: result.ImprovementPercentage,
		AnomaliesDetected:     len(anomalies),
	}
	for _, b := range bayesian {
		if b.VariantID == result.WinningVariant {
			p := b.ProbabilityToBeBest
			summary.BayesianProbability = &p
			break
		}
	}

	if err := s.store.UpdateResultsSummary(ctx, testID, summary); err != nil {
		return nil, fmt.Errorf("failed to persist results summary: %w", err)
	}

	return &AnalysisResult{
		Result:    result,
		Bayesian:  bayesian,
		MVT:       mvt,
		Anomalies: anomalies,
	}, nil
}

func (s *Service) latestSessions(ctx context.Context, userID string) (int, error) {
	rs, err := s.store.GetRetentionState(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get retention state: %w", err)
	}
	return rs.LatestSessions(), nil
}
