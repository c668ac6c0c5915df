package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"reposense/internal/config"
	"reposense/internal/gitexec"
	"reposense/internal/models"
	"reposense/internal/query"
	"reposense/internal/ratelimit"
	"reposense/internal/resolve"
	"reposense/internal/scheduler"
	"reposense/internal/store"
	"reposense/internal/suggest"
	"reposense/internal/telemetry"
)

// Server wires the HTTP handlers consumed by the dashboard UI.
type Server struct {
	cfg       config.Config
	sched     *scheduler.Scheduler
	facade    *query.Facade
	runner    *gitexec.Runner
	resolver  *resolve.Resolver
	suggester suggest.Provider
	limiter   *ratelimit.TokenBucket
	log       zerolog.Logger
}

// New constructs the API server.
func New(cfg config.Config, sched *scheduler.Scheduler, facade *query.Facade, runner *gitexec.Runner,
	resolver *resolve.Resolver, suggester suggest.Provider, limiter *ratelimit.TokenBucket, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		sched:     sched,
		facade:    facade,
		runner:    runner,
		resolver:  resolver,
		suggester: suggester,
		limiter:   limiter,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/repo", func(r chi.Router) {
			r.Route("/auto-push", func(r chi.Router) {
				r.Post("/schedule", s.handleSchedule)
				r.Get("/active", s.handleActiveJobs)
				r.Post("/history", s.handleHistory)
				r.Get("/stats", s.handleStats)
				r.Post("/cancel", s.handleCancel)
			})
			r.Post("/auto-loop", s.handleStartLoop)
			r.Post("/auto-loop/stop", s.handleStopLoop)
			r.Post("/resolve-conflicts", s.handleResolveConflicts)
			r.Post("/commit-push", s.handleCommitPush)
			r.Post("/push", s.handlePush)
			r.Post("/sync", s.handleSync)
			r.Post("/detect", s.handleDetect)
			r.Post("/status", s.handleStatus)
		})
		r.Post("/ai/suggest-commit", s.handleSuggestCommit)
	})
	return r
}

type scheduleRequest struct {
	WorkspacePath string `json:"workspace_path"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	DelayMinutes  int    `json:"delay_minutes"`
	ForcePush     bool   `json:"force_push"`
	Rebase        bool   `json:"rebase"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if req.Kind == "" {
		req.Kind = models.KindCommitPush
	}
	if !s.allow(w, r, req.WorkspacePath) {
		return
	}

	payload := models.Payload{Message: req.Message, ForcePush: req.ForcePush, Rebase: req.Rebase, AutoPush: true}
	job, err := s.sched.Schedule(r.Context(), req.WorkspacePath, req.Kind, payload, time.Duration(req.DelayMinutes)*time.Minute)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job": job})
}

func (s *Server) handleActiveJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.facade.ActiveJobs(r.Context(), r.URL.Query().Get("workspace"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobs": jobs})
}

type historyRequest struct {
	WorkspacePath string `json:"workspace_path"`
	Limit         int    `json:"limit"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	jobs, err := s.facade.History(r.Context(), req.WorkspacePath, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobs": jobs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.facade.Stats(r.Context(), r.URL.Query().Get("workspace"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"total":     stats.Total,
		"active":    stats.Pending + stats.Running,
		"pending":   stats.Pending,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"cancelled": stats.Cancelled,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, errors.New("job_id is required"))
		return
	}
	if err := s.sched.Cancel(r.Context(), req.JobID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": models.StatusCancelled})
}

type loopRequest struct {
	WorkspacePath   string `json:"workspace_path"`
	IntervalMinutes int    `json:"interval_minutes"`
}

func (s *Server) handleStartLoop(w http.ResponseWriter, r *http.Request) {
	var req loopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace_path is required"))
		return
	}
	if !s.allow(w, r, req.WorkspacePath) {
		return
	}
	loopID, err := s.sched.StartRecurring(req.WorkspacePath, time.Duration(req.IntervalMinutes)*time.Minute)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "loop_id": loopID})
}

func (s *Server) handleStopLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoopID string `json:"loop_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LoopID == "" {
		writeError(w, http.StatusBadRequest, errors.New("loop_id is required"))
		return
	}
	if err := s.sched.StopRecurring(req.LoopID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleResolveConflicts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspacePath string `json:"workspace_path"`
		Strategy      string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace_path is required"))
		return
	}
	if err := s.resolver.Resolve(r.Context(), req.WorkspacePath, req.Strategy); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Immediate operations go through the scheduler with delay zero so they
// share the same lifecycle, history, and audit trail as deferred jobs.
func (s *Server) handleCommitPush(w http.ResponseWriter, r *http.Request) {
	s.scheduleImmediate(w, r, models.KindCommitPush)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	s.scheduleImmediate(w, r, models.KindPush)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.scheduleImmediate(w, r, models.KindSync)
}

func (s *Server) scheduleImmediate(w http.ResponseWriter, r *http.Request, kind string) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	if !s.allow(w, r, req.WorkspacePath) {
		return
	}
	payload := models.Payload{Message: req.Message, ForcePush: req.ForcePush, Rebase: req.Rebase, AutoPush: true}
	job, err := s.sched.Schedule(r.Context(), req.WorkspacePath, kind, payload, 0)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job": job})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspacePath string `json:"workspace_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace_path is required"))
		return
	}
	info, err := s.runner.Detect(r.Context(), req.WorkspacePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspacePath string `json:"workspace_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace_path is required"))
		return
	}
	st, err := s.runner.Status(r.Context(), req.WorkspacePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clean": st.Clean, "files": st.Files})
}

func (s *Server) handleSuggestCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspacePath string `json:"workspace_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspacePath == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace_path is required"))
		return
	}
	suggestion, err := s.suggester.Suggest(r.Context(), req.WorkspacePath)
	if err != nil || suggestion == "" {
		suggestion = suggest.FallbackLabel(time.Now())
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "suggestion": suggestion})
}

// allow applies the per-workspace rate limit; it writes the 429 itself.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, workspace string) bool {
	if s.limiter == nil {
		return true
	}
	allowed, err := s.limiter.AllowWorkspace(r.Context(), workspace)
	if err != nil {
		s.log.Error().Err(err).Msg("rate limiter unavailable")
		writeError(w, http.StatusInternalServerError, errors.New("rate limit error"))
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		writeError(w, http.StatusTooManyRequests, errors.New("rate limited"))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidJob),
		errors.Is(err, scheduler.ErrDelayOutOfRange),
		errors.Is(err, scheduler.ErrIntervalOutOfRange),
		errors.Is(err, resolve.ErrUnknownStrategy):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, scheduler.ErrLoopNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrCannotCancel),
		errors.Is(err, resolve.ErrNoConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
