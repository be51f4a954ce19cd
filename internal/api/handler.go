// Package api provides HTTP handlers for the assessment API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/codesight-dev/codesight/internal/domain"
	"github.com/codesight-dev/codesight/internal/identity"
	"github.com/codesight-dev/codesight/internal/sandbox"
	"github.com/codesight-dev/codesight/internal/scheduler"
	"github.com/codesight-dev/codesight/internal/store"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

const (
	rateLimitRequests = 30
	rateLimitWindow   = time.Minute
)

// Handler serves the assessment HTTP API.
type Handler struct {
	registry *scheduler.Registry
	runner   sandbox.Runner
	repo     store.Repository
	problems *ProblemSet
	rate     *RateLimiter
	streams  *StreamHub
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *scheduler.Registry, runner sandbox.Runner, repo store.Repository, problems *ProblemSet, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		runner:   runner,
		repo:     repo,
		problems: problems,
		rate:     NewRateLimiter(rateLimitRequests, rateLimitWindow),
		logger:   logger,
	}
}

// SetStreamHub attaches the SSE hub so finished sessions release their
// replay buffers. Optional; nil is fine in tests.
func (h *Handler) SetStreamHub(hub *StreamHub) {
	h.streams = hub
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// session resolves the URL session ID to a live scheduler, enforcing that the
// requester owns the session. It writes the error response itself on failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*scheduler.Scheduler, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	sched, ok := h.registry.Get(sessionID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if sched.Session().CandidateID != identity.CandidateIDFromContext(r.Context()) {
		Error(w, http.StatusForbidden, "session belongs to another candidate")
		return nil, false
	}
	return sched, true
}

type startSessionRequest struct {
	ProblemID string `json:"problemId"`
	Language  string `json:"language"`
}

type startSessionResponse struct {
	SessionID      string         `json:"sessionId"`
	Problem        domain.Problem `json:"problem"`
	Language       string         `json:"language"`
	HintsRemaining int            `json:"hintsRemaining"`
	StartedAt      time.Time      `json:"startedAt"`
}

// StartSession begins a new assessment session for the requesting candidate.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decode(w, r, &req) {
		return
	}

	language := req.Language
	if language == "" {
		language = "python"
	}
	if language != "python" && language != "javascript" {
		Error(w, http.StatusBadRequest, "unsupported language")
		return
	}

	var problem domain.Problem
	if req.ProblemID != "" {
		p, ok := h.problems.Get(req.ProblemID)
		if !ok {
			Error(w, http.StatusNotFound, "unknown problem")
			return
		}
		problem = p
	} else {
		problem = h.problems.Random()
	}

	session := &domain.Session{
		ID:          uuid.New().String(),
		CandidateID: identity.CandidateIDFromContext(r.Context()),
		Problem:     problem,
		Language:    language,
		StartTime:   time.Now(),
		Active:      true,
	}
	sched := h.registry.Create(session)

	h.logger.Info("session started",
		"session_id", session.ID,
		"candidate_id", session.CandidateID,
		"problem_id", problem.ID,
		"language", language,
		"client_ip", identity.IPFromRequest(r),
	)

	JSON(w, http.StatusCreated, startSessionResponse{
		SessionID:      session.ID,
		Problem:        problem,
		Language:       language,
		HintsRemaining: sched.HintsRemaining(),
		StartedAt:      session.StartTime,
	})
}

// ListProblems returns the problem catalog.
func (h *Handler) ListProblems(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.problems.List())
}

type editRequest struct {
	Code string `json:"code"`
}

// RecordEdit ingests the candidate's current editor contents.
func (h *Handler) RecordEdit(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.session(w, r)
	if !ok {
		return
	}
	var req editRequest
	if !decode(w, r, &req) {
		return
	}
	sched.RecordEdit(req.Code)
	JSON(w, http.StatusOK, sched.Metrics())
}

// RunCode executes the candidate's code against the problem's test cases.
func (h *Handler) RunCode(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.rate.Allow(identity.CandidateIDFromContext(r.Context())) {
		Error(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req editRequest
	if !decode(w, r, &req) {
		return
	}

	// The run payload is the freshest code we have; count it as an edit so
	// idle measurement tracks what the candidate actually has on screen.
	sched.RecordEdit(req.Code)

	session := sched.Session()
	start := time.Now()
	result, err := h.runner.Run(r.Context(), sandbox.Request{
		Code:      req.Code,
		Language:  session.Language,
		TestCases: session.Problem.TestCases,
	})
	if err != nil {
		h.logger.Error("sandbox run failed",
			"session_id", session.ID, "error", err)
		Error(w, http.StatusBadGateway, "execution backend unavailable")
		return
	}

	sched.RecordExecution(domain.ExecutionAttempt{
		Timestamp:   start,
		Success:     result.Success,
		TestsPassed: result.TestsPassed,
		TestsTotal:  result.TestsTotal,
		Duration:    result.Duration,
	})
	JSON(w, http.StatusOK, result)
}

// RequestHint is the candidate's manual hint request. The hint content
// arrives over the event stream once generated.
func (h *Handler) RequestHint(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.rate.Allow(identity.CandidateIDFromContext(r.Context())) {
		Error(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	rec, err := sched.RequestHint()
	switch {
	case errors.Is(err, scheduler.ErrQuotaExhausted):
		Error(w, http.StatusTooManyRequests, "hint quota exhausted")
		return
	case errors.Is(err, scheduler.ErrInterventionInFlight):
		Error(w, http.StatusConflict, "an intervention is already pending")
		return
	case errors.Is(err, scheduler.ErrSessionEnded):
		Error(w, http.StatusGone, "session has ended")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, "failed to request hint")
		return
	}

	JSON(w, http.StatusAccepted, map[string]any{
		"id":             rec.ID,
		"kind":           rec.Kind,
		"state":          rec.State,
		"hintsRemaining": sched.HintsRemaining(),
	})
}

type resolveRequest struct {
	Response string `json:"response"`
	Voice    bool   `json:"voice"`
}

// ResolveIntervention acknowledges an open intervention, optionally with the
// candidate's typed or transcribed answer.
func (h *Handler) ResolveIntervention(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.session(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}

	sig, err := sched.Resolve(r.Context(), chi.URLParam(r, "interventionID"), req.Response, req.Voice)
	switch {
	case errors.Is(err, scheduler.ErrUnknownIntervention):
		Error(w, http.StatusNotFound, "unknown intervention")
		return
	case errors.Is(err, scheduler.ErrInterventionNotOpen):
		Error(w, http.StatusConflict, "intervention is not open")
		return
	case errors.Is(err, scheduler.ErrSessionEnded):
		Error(w, http.StatusGone, "session has ended")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, "failed to resolve intervention")
		return
	}

	JSON(w, http.StatusOK, sig)
}

type submitRequest struct {
	Code string `json:"code"`
}

type submitResponse struct {
	SessionID     string `json:"sessionId"`
	ElapsedMs     int64  `json:"elapsedMs"`
	Attempts      int    `json:"attempts"`
	HintsUsed     int    `json:"hintsUsed"`
	Interventions int    `json:"interventions"`
}

// SubmitSession finalizes the session and persists the submission.
func (h *Handler) SubmitSession(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.session(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}

	sub := sched.Submit(req.Code)
	sessionID := sub.Session.ID

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.repo.SaveSubmission(saveCtx, sub); err != nil {
		// The scheduler already froze the session; losing the write would
		// lose the assessment, so surface it loudly.
		h.logger.Error("failed to persist submission",
			"session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to persist submission")
		return
	}
	h.registry.Remove(sessionID)
	if h.streams != nil {
		h.streams.CloseSession(sessionID)
	}

	JSON(w, http.StatusOK, submitResponse{
		SessionID:     sessionID,
		ElapsedMs:     sub.ElapsedTime.Milliseconds(),
		Attempts:      len(sub.Attempts),
		HintsUsed:     len(sub.HintsUsed),
		Interventions: len(sub.Interventions),
	})
}

// GetSubmission returns a persisted submission.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.repo.GetSubmission(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load submission", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load submission")
		return
	}
	if sub.Session.CandidateID != identity.CandidateIDFromContext(r.Context()) {
		Error(w, http.StatusForbidden, "submission belongs to another candidate")
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Health reports liveness of the store and the execution backend.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"store": "ok", "sandbox": "ok"}
	if err := h.repo.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.runner.Ping(ctx); err != nil {
		checks["sandbox"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, checks)
}
