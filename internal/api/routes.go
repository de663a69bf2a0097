package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/volume-sync/vsc/internal/auth"
	"github.com/volume-sync/vsc/internal/dispatch"
)

// TaskResponse is the data payload returned for a settled task.
type TaskResponse struct {
	ID    int64       `json:"id"`
	OK    bool        `json:"ok"`
	Value interface{} `json:"value,omitempty"`
	Err   string      `json:"err,omitempty"`
}

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	requireAuth := s.authMiddleware.RequireAuth
	readScope := s.authMiddleware.RequireScope(auth.ScopeRead)
	controlScope := s.authMiddleware.RequireScope(auth.ScopeControl)
	telemetryScope := s.authMiddleware.RequireScope(auth.ScopeTelemetry)

	mux.HandleFunc(apiV1+"/capabilities", requireAuth(readScope(s.handleCapabilities)))
	mux.HandleFunc(apiV1+"/tasks", s.limiter.Middleware(requireAuth(controlScope(s.handleTasks))))
	mux.HandleFunc(apiV1+"/mounts", requireAuth(readScope(s.handleMounts)))
	mux.HandleFunc(apiV1+"/events", requireAuth(telemetryScope(s.handleEvents)))

	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	health := map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": "1.0.0",
	}
	if s.status != nil {
		health["initialized"] = s.status.Initialized()
		health["queueDepth"] = s.status.QueueDepth()
	}

	WriteSuccess(w, health)
}

// handleCapabilities handles GET /capabilities
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"operations": []string{string(dispatch.OpInitSpawn), string(dispatch.OpListMounts)},
		"telemetry":  []string{"sse"},
		"commands":   []string{"http-json"},
		"version":    "1.0.0",
	})
}

// handleTasks handles POST /tasks: submit one task and hold the request
// open until the completion event settles it or the per-operation timeout
// fires. Domain errors travel inside a success envelope; only transport
// failures produce an error envelope.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only POST method is allowed", nil)
		return
	}

	var req struct {
		Op string `json:"op"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return
	}

	op := dispatch.Operation(req.Op)
	if !op.Valid() {
		WriteError(w, http.StatusBadRequest, "INVALID_PARAMETER", "Unknown operation", map[string]string{"op": req.Op})
		return
	}

	s.submitAndWait(w, r, op)
}

// handleMounts handles GET /mounts as a read-only convenience over the
// listMounts task.
func (s *Server) handleMounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	s.submitAndWait(w, r, dispatch.OpListMounts)
}

// submitAndWait runs one task through the dispatcher and renders the
// settled outcome.
func (s *Server) submitAndWait(w http.ResponseWriter, r *http.Request, op dispatch.Operation) {
	if s.dispatcher == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Dispatcher not available", nil)
		return
	}

	call, err := s.dispatcher.Submit(r.Context(), dispatch.Request{Op: op})
	if err != nil {
		status, code, message := statusAndCode(err)
		WriteError(w, status, code, message, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.taskTimeout(op))
	defer cancel()

	outcome, err := call.Wait(ctx)
	if err != nil {
		status, code, message := statusAndCode(err)
		WriteError(w, status, code, message, map[string]int64{"id": call.ID})
		return
	}

	WriteSuccess(w, TaskResponse{
		ID:    call.ID,
		OK:    outcome.OK,
		Value: outcome.Value,
		Err:   outcome.Err,
	})
}

// taskTimeout returns the configured wait timeout for op.
func (s *Server) taskTimeout(op dispatch.Operation) time.Duration {
	switch op {
	case dispatch.OpInitSpawn:
		return s.cfg.Tasks.TimeoutInitSpawn.Std()
	default:
		return s.cfg.Tasks.TimeoutListMounts.Std()
	}
}

// handleEvents handles GET /events: the SSE stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	if s.telemetry == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Event hub not available", nil)
		return
	}

	if err := s.telemetry.Subscribe(r.Context(), w, r); err != nil {
		// Headers are already written once the stream starts; only report
		// failures that happen before that.
		if r.Context().Err() == nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "Event stream failed", nil)
		}
	}
}
