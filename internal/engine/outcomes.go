package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/lifecyclelab/intervene/internal/store"
)

// ErrInvalidInput flags a tracking call with missing or malformed fields.
var ErrInvalidInput = errors.New("invalid input")

// MarkShown records that the intervention was displayed. Calling twice just
// refreshes the timestamp; no exposure history is kept.
func (s *Service) MarkShown(ctx context.Context, assignmentID string) error {
	if assignmentID == "" {
		return fmt.Errorf("%w: assignment id is required", ErrInvalidInput)
	}
	return s.store.SetInterventionShown(ctx, assignmentID, s.now())
}

// RecordAction stores the user's reaction to the intervention. Only the most
// recent action is retained; a second call overwrites the first.
func (s *Service) RecordAction(ctx context.Context, assignmentID string, action store.UserAction) error {
	if assignmentID == "" {
		return fmt.Errorf("%w: assignment id is required", ErrInvalidInput)
	}
	switch action {
	case store.ActionClicked, store.ActionCompleted, store.ActionDismissed:
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, action)
	}
	return s.store.SetUserAction(ctx, assignmentID, action, s.now())
}

// RecordConversion appends a conversion event to the assignment. Repeated
// identical events are not deduplicated; every call appends.
func (s *Service) RecordConversion(ctx context.Context, assignmentID, eventType string, eventValue float64) error {
	if assignmentID == "" {
		return fmt.Errorf("%w: assignment id is required", ErrInvalidInput)
	}
	if eventType == "" {
		return fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	return s.store.AppendConversionEvent(ctx, assignmentID, store.ConversionEvent{
		EventType:  eventType,
		EventValue: eventValue,
		OccurredAt: s.now(),
	})
}

// RefreshMetrics re-reads the user's current lifecycle snapshot and session
// count and writes them as the assignment's "after" metrics. This runs only
// when explicitly triggered, never on a timer. A missing lifecycle record
// leaves state and churn after-values null; the session count still lands,
// defaulting to 0.
func (s *Service) RefreshMetrics(ctx context.Context, assignmentID string) error {
	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	var stateAfter *string
	var churnAfter *float64
	ls, err := s.store.GetLifecycleState(ctx, assignment.UserID)
	if err == nil {
		stateAfter = &ls.CurrentState
		churnAfter = &ls.ChurnRiskScore
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to get lifecycle state: %w", err)
	}

	sessions, err := s.latestSessions(ctx, assignment.UserID)
	if err != nil {
		return err
	}

	return s.store.UpdatePostMetrics(ctx, assignmentID, stateAfter, churnAfter, sessions)
}
