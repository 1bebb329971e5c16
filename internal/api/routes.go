package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/timnaher/ds8r/internal/auth"
	"github.com/timnaher/ds8r/internal/stimulator"
)

const apiV1 = "/api/v1"

// maxBodyBytes bounds request bodies; a parameter record is well under this.
const maxBodyBytes = 64 << 10

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	m := s.authMiddleware
	read := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(m.RequireScope(auth.ScopeRead)(h))
	}
	// Anything that can change the output needs an operator holding the stimulate scope.
	stimulate := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(m.RequireRole(auth.RoleOperator)(m.RequireScope(auth.ScopeStimulate)(h)))
	}

	mux.HandleFunc(apiV1+"/health", s.handleHealth)
	mux.HandleFunc(apiV1+"/metrics", s.handleMetrics)

	mux.HandleFunc(apiV1+"/device", read(s.handleDevice))
	mux.HandleFunc(apiV1+"/state", read(s.handleState))
	mux.HandleFunc(apiV1+"/validate", read(s.handleValidate))
	mux.HandleFunc(apiV1+"/audit", read(s.handleAudit))

	mux.HandleFunc(apiV1+"/parameters", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			read(s.handleGetParameters)(w, r)
			return
		}
		stimulate(s.handlePutParameters)(w, r)
	})
	mux.HandleFunc(apiV1+"/trigger", stimulate(s.handleTrigger))
	mux.HandleFunc(apiV1+"/run", stimulate(s.handleRun))
	mux.HandleFunc(apiV1+"/enabled", stimulate(s.handleEnabled))
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Only %s method is allowed", method), nil)
	return false
}

// decodeStrict decodes a single JSON object, rejecting unknown fields and trailing data.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON or unknown fields: %v", ErrBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return nil
}

func (s *Server) available(w http.ResponseWriter) bool {
	if s.orchestrator == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service not available", nil)
		return false
	}
	return true
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	subsystems := map[string]bool{
		"orchestrator": s.orchestrator != nil,
		"device":       s.device != nil,
		"metrics":      s.metrics != nil,
		"audit":        s.auditLog != nil,
	}

	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    Version,
		"auth":       s.authMiddleware.Enabled(),
		"subsystems": subsystems,
	}
	if s.device != nil {
		health["deviceStatus"] = s.device.Get().Status
	}

	if !subsystems["orchestrator"] || !subsystems["device"] {
		health["status"] = "degraded"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"One or more subsystems are unavailable", health)
		return
	}
	WriteSuccess(w, health)
}

// handleMetrics handles GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.metrics == nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Metrics are not enabled", nil)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

// handleDevice handles GET /device
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.device == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Device manager not available", nil)
		return
	}
	WriteSuccess(w, s.device.Get())
}

// handleState handles GET /state, reading the settings from the device.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !s.available(w) {
		return
	}
	state, err := s.orchestrator.GetState(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, state)
}

// handleGetParameters handles GET /parameters with the last uploaded record.
func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	params := s.orchestrator.Defaults()
	uploaded := false
	if s.device != nil {
		if d := s.device.Get(); d.Parameters != nil {
			params = *d.Parameters
			uploaded = true
		}
	}
	WriteSuccess(w, map[string]interface{}{
		"parameters": params,
		"uploaded":   uploaded,
		"safeDemand": s.orchestrator.SafeDemand(),
	})
}

// baseParameters is the record request bodies are decoded over: the one the
// device last accepted, or the configured defaults before the first upload.
func (s *Server) baseParameters() stimulator.Parameters {
	if s.device != nil {
		if p, ok := s.device.LastParameters(); ok {
			return p
		}
	}
	return s.orchestrator.Defaults()
}

// handlePutParameters handles PUT /parameters. Omitted fields keep their current value.
func (s *Server) handlePutParameters(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) || !s.available(w) {
		return
	}

	p := s.baseParameters()
	if err := decodeStrict(r, &p); err != nil {
		writeAPIError(w, err)
		return
	}

	res, err := s.orchestrator.Upload(r.Context(), p)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	warnings, _ := s.orchestrator.Validate(p)
	WriteSuccess(w, map[string]interface{}{
		"parameters": p,
		"result":     res,
		"warnings":   warnings,
	})
}

// handleTrigger handles POST /trigger
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !s.available(w) {
		return
	}
	res, err := s.orchestrator.Trigger(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, res)
}

type runRequest struct {
	stimulator.Parameters
	Force bool `json:"force"`
}

// handleRun handles POST /run: safety check, upload, trigger.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !s.available(w) {
		return
	}

	req := runRequest{Parameters: s.baseParameters()}
	if err := decodeStrict(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}

	res, err := s.orchestrator.Run(r.Context(), req.Parameters, req.Force)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"parameters": req.Parameters,
		"upload":     res.Upload,
		"trigger":    res.Trigger,
	})
}

// handleEnabled handles POST /enabled
func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !s.available(w) {
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeStrict(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if req.Enabled == nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "enabled is required", nil)
		return
	}

	res, err := s.orchestrator.SetEnabled(r.Context(), *req.Enabled)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"enabled": *req.Enabled, "result": res})
}

// handleValidate handles POST /validate without touching the device.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !s.available(w) {
		return
	}

	p := s.baseParameters()
	if err := decodeStrict(r, &p); err != nil {
		writeAPIError(w, err)
		return
	}

	warnings, err := s.orchestrator.Validate(p)
	resp := map[string]interface{}{
		"parameters":   p,
		"valid":        err == nil,
		"warnings":     warnings,
		"requireForce": s.orchestrator.CheckSafety(p, false) != nil,
	}
	if err != nil {
		resp["fields"] = stimulator.FieldErrors(err)
	}
	WriteSuccess(w, resp)
}

// handleAudit handles GET /audit?limit=N
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.auditLog == nil {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Audit log is not enabled", nil)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 1000", nil)
			return
		}
		limit = n
	}

	entries, err := s.auditLog.Recent(limit)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, entries)
}
