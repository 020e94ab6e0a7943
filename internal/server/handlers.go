package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine error classes onto HTTP statuses. Not-found and
// invalid-input are caller failures; everything else is internal.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrNoLifecycleState), errors.Is(err, engine.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON", engine.ErrInvalidInput)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}
	return nil
}

type variantPayload struct {
	VariantID         string  `json:"variant_id" validate:"required"`
	Name              string  `json:"name" validate:"required"`
	TrafficAllocation float64 `json:"traffic_allocation" validate:"gte=0,lte=100"`
}

type createTestRequest struct {
	Name           string                `json:"name" validate:"required"`
	LifecycleState string                `json:"lifecycle_state" validate:"required"`
	Status         string                `json:"status" validate:"omitempty,oneof=draft active paused completed"`
	StartDate      *time.Time            `json:"start_date"`
	EndDate        *time.Time            `json:"end_date"`
	Variants       []variantPayload      `json:"variants" validate:"required,min=1,dive"`
	TargetCriteria *store.TargetCriteria `json:"target_criteria"`
	PrimaryMetric  string                `json:"primary_metric" validate:"omitempty,oneof=click_through_rate action_completion state_transition churn_reduction session_increase"`
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		exps, err := s.store.ListExperiments(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tests": exps})

	case http.MethodPost:
		var req createTestRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		seen := make(map[string]bool, len(req.Variants))
		variants := make([]store.Variant, len(req.Variants))
		for i, v := range req.Variants {
			if seen[v.VariantID] {
				s.writeError(w, fmt.Errorf("%w: duplicate variant id %q", engine.ErrInvalidInput, v.VariantID))
				return
			}
			seen[v.VariantID] = true
			variants[i] = store.Variant{VariantID: v.VariantID, Name: v.Name, TrafficAllocation: v.TrafficAllocation}
		}

		status := store.ExperimentStatus(req.Status)
		if status == "" {
			status = store.StatusDraft
		}
		metric := store.PrimaryMetric(req.PrimaryMetric)
		if metric == "" {
			metric = store.MetricClickThroughRate
		}

		exp := &store.Experiment{
			ID:             uuid.NewString(),
			Name:           req.Name,
			LifecycleState: req.LifecycleState,
			Status:         status,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			Variants:       variants,
			TargetCriteria: req.TargetCriteria,
			SuccessMetrics: store.SuccessMetrics{PrimaryMetric: metric},
		}
		if err := s.store.CreateExperiment(r.Context(), exp); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, exp)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleActiveTests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		s.writeError(w, fmt.Errorf("%w: state query parameter is required", engine.ErrInvalidInput))
		return
	}

	tests, err := s.engine.ActiveTestsForState(r.Context(), state)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (s *Server) handleTestByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitPath(r.URL.Path, "/api/tests/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		exp, err := s.store.GetExperiment(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case action == "analyze" && r.Method == http.MethodPost:
		result, err := s.engine.AnalyzeTest(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type assignRequest struct {
	TestID string `json:"test_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.Assign(r.Context(), req.TestID, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Ineligible and already-assigned are successful responses the caller
	// branches on, not errors.
	switch {
	case result.AlreadyAssigned:
		writeJSON(w, http.StatusOK, map[string]any{
			"already_assigned": true,
			"assignment":       result.Assignment,
		})
	case result.Assigned:
		writeJSON(w, http.StatusCreated, map[string]any{
			"assigned":   true,
			"assignment": result.Assignment,
			"variant":    result.Variant,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"assigned": false,
			"reason":   result.Reason,
		})
	}
}

type actionRequest struct {
	ActionType string `json:"action_type" validate:"required,oneof=clicked completed dismissed"`
}

type conversionRequest struct {
	EventType  string  `json:"event_type" validate:"required"`
	EventValue float64 `json:"event_value"`
}

func (s *Server) handleAssignmentByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitPath(r.URL.Path, "/api/assignments/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a, err := s.store.GetAssignment(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch action {
	case "shown":
		err = s.engine.MarkShown(r.Context(), id)
	case "action":
		var req actionRequest
		if err = s.decode(r, &req); err == nil {
			err = s.engine.RecordAction(r.Context(), id, store.UserAction(req.ActionType))
		}
	case "conversion":
		var req conversionRequest
		if err = s.decode(r, &req); err == nil {
			err = s.engine.RecordConversion(r.Context(), id, req.EventType, req.EventValue)
		}
	case "metrics":
		err = s.engine.RefreshMetrics(r.Context(), id)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// splitPath extracts the record id and optional trailing action from a
// prefixed path like /api/assignments/<id>/<action>.
func splitPath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
