// Package routes exposes the strategy engine over HTTP.
package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachrag/internal/engine"
	"github.com/briangreenhill/coachrag/internal/jobs"
	"github.com/briangreenhill/coachrag/internal/model"
)

// outcomeCheckDelay is how long after delivery the worker should look for a
// still-unassessed execution: roughly one interval at typical cadence.
const outcomeCheckDelay = 90 * time.Second

type Server struct {
	Router *chi.Mux
	Engine *engine.Engine
	Tasks  *asynq.Client // optional; nil disables background scheduling
	Log    zerolog.Logger
}

type ServerOptions struct {
	Engine *engine.Engine
	Tasks  *asynq.Client
	Log    zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Engine: opts.Engine, Tasks: opts.Tasks, Log: opts.Log}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.Log.Warn().Err(err).Msg("writing health check response")
		}
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/strategy", s.handleStrategy)
		v1.Post("/executions/{executionID}/assess", s.handleAssess)
		v1.Post("/executions/{executionID}/outcome", s.handleOutcome)
		v1.Post("/admin/kb/embeddings", s.handleEmbedBackfill)
	})

	return s
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var req engine.AdaptiveStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	out, err := s.Engine.AdaptiveStrategy(r.Context(), req)
	if err != nil {
		// Only context cancellation reaches here; everything else degrades.
		s.writeError(w, http.StatusServiceUnavailable, "request canceled")
		return
	}

	if out.ExecutionID != "" && out.RequiresOutcomeCheck {
		s.scheduleOutcomeCheck(out.ExecutionID, req.UserID)
	}

	s.writeJSON(w, http.StatusOK, out)
}

// scheduleOutcomeCheck enqueues a delayed reminder task. Best effort: a
// failed enqueue only costs us a stale-execution log line later.
func (s *Server) scheduleOutcomeCheck(executionID, userID string) {
	if s.Tasks == nil {
		return
	}

	payload, err := json.Marshal(jobs.OutcomeCheckPayload{ExecutionID: executionID, UserID: userID})
	if err != nil {
		return
	}
	task := asynq.NewTask(jobs.TaskOutcomeCheck, payload)
	if _, err := s.Tasks.Enqueue(task,
		asynq.ProcessIn(outcomeCheckDelay),
		asynq.TaskID("outcome-check:"+executionID),
	); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		s.Log.Warn().Err(err).Str("execution_id", executionID).Msg("outcome check enqueue failed")
	}
}

type assessRequest struct {
	Before model.Metrics `json:"before_metrics"`
	After  model.Metrics `json:"after_metrics"`
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	if _, err := uuid.Parse(executionID); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.Engine.AssessEffectiveness(r.Context(), executionID, req.Before, req.After)
	if errors.Is(err, engine.ErrExecutionNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "assessment failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type outcomeRequest struct {
	OutcomeMetrics      model.Metrics `json:"outcome_metrics"`
	WasEffective        bool          `json:"was_effective"`
	EffectivenessScore  float64       `json:"effectiveness_score"`
	EffectivenessReason string        `json:"effectiveness_reason"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	if _, err := uuid.Parse(executionID); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.Engine.RecordOutcome(r.Context(), executionID, req.OutcomeMetrics,
		req.WasEffective, req.EffectivenessScore, req.EffectivenessReason)
	if errors.Is(err, engine.ErrExecutionNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "outcome persistence failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmbedBackfill(w http.ResponseWriter, r *http.Request) {
	if s.Tasks == nil {
		s.writeError(w, http.StatusServiceUnavailable, "background tasks not configured")
		return
	}

	var req jobs.EmbedBackfillPayload
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	if _, err := s.Tasks.Enqueue(asynq.NewTask(jobs.TaskEmbedBackfill, payload)); err != nil {
		s.writeError(w, http.StatusBadGateway, "enqueue failed")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Warn().Err(err).Msg("writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
