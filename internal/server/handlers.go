package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/experiment"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses. Races and
// duplicates never reach this point; they are absorbed below the engine.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, experiment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, experiment.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, experiment.ErrInvalidConfig):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, experiment.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

type createVariantRequest struct {
	Name      string          `json:"name"`
	Weight    float64         `json:"weight"`
	IsControl bool            `json:"is_control"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type createExperimentRequest struct {
	Name     string                 `json:"name"`
	Scope    string                 `json:"scope"`
	Variants []createVariantRequest `json:"variants"`
}

type variantResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Weight    float64         `json:"weight"`
	IsControl bool            `json:"is_control"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type experimentResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Scope           string            `json:"scope"`
	Status          string            `json:"status"`
	WinnerVariantID *string           `json:"winner_variant_id,omitempty"`
	Variants        []variantResponse `json:"variants"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
}

func toExperimentResponse(exp *experiment.Experiment) experimentResponse {
	resp := experimentResponse{
		ID:              exp.ID,
		Name:            exp.Name,
		Scope:           exp.Scope,
		Status:          string(exp.Status),
		WinnerVariantID: exp.WinnerVariantID,
		CreatedAt:       exp.CreatedAt,
		StartedAt:       exp.StartedAt,
		EndedAt:         exp.EndedAt,
	}
	for _, v := range exp.Variants {
		resp.Variants = append(resp.Variants, variantResponse{
			ID:        v.ID,
			Name:      v.Name,
			Weight:    v.Weight,
			IsControl: v.IsControl,
			Payload:   v.Payload,
		})
	}
	return resp
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	variants := make([]engine.NewVariant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, engine.NewVariant{
			Name:      v.Name,
			Weight:    v.Weight,
			IsControl: v.IsControl,
			Payload:   v.Payload,
		})
	}

	exp, err := s.engine.CreateExperiment(r.Context(), req.Name, req.Scope, variants)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toExperimentResponse(exp))
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.engine.ListExperiments(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := make([]experimentResponse, 0, len(experiments))
	for _, exp := range experiments {
		resp = append(resp, toExperimentResponse(exp))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.engine.GetExperiment(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toExperimentResponse(exp))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context(), chi.URLParam(r, "experimentID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context(), chi.URLParam(r, "experimentID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	WinnerVariantID *string `json:"winner_variant_id,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
			return
		}
	}
	if err := s.engine.Complete(r.Context(), chi.URLParam(r, "experimentID"), req.WinnerVariantID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	SubjectID string `json:"subject_id"`
}

type enrollmentResponse struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	SubjectID    string    `json:"subject_id"`
	VariantID    string    `json:"variant_id"`
	AssignedAt   time.Time `json:"assigned_at"`
}

func toEnrollmentResponse(e *experiment.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:           e.ID,
		ExperimentID: e.ExperimentID,
		SubjectID:    e.SubjectID,
		VariantID:    e.VariantID,
		AssignedAt:   e.AssignedAt,
	}
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	enrollment, err := s.engine.AssignVariant(r.Context(), chi.URLParam(r, "experimentID"), req.SubjectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toEnrollmentResponse(enrollment))
}

func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject_id")
	if subjectID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "subject_id is required"})
		return
	}

	enrollment, err := s.engine.GetEnrollmentBySubject(r.Context(), chi.URLParam(r, "experimentID"), subjectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toEnrollmentResponse(enrollment))
}

type recordEventRequest struct {
	EnrollmentID string     `json:"enrollment_id"`
	Kind         string     `json:"kind"`
	OccurredAt   *time.Time `json:"occurred_at,omitempty"`
	Value        *float64   `json:"value,omitempty"`
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	err := s.engine.RecordEvent(r.Context(), req.EnrollmentID, experiment.EventKind(req.Kind), occurredAt, req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.ComputeSnapshot(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}
