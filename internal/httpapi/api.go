// Package httpapi exposes the orchestrator as a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/orchestrator"
	"github.com/chatvault/chatvault/internal/store"
)

// API serves the orchestrator over HTTP.
type API struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewHandler builds the HTTP handler with all routes registered.
func NewHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{orch: orch, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /providers", a.listProviders)
	mux.HandleFunc("GET /providers/{id}", a.describeProvider)
	mux.HandleFunc("GET /tools", a.listTools)

	mux.HandleFunc("POST /credentials/validate", a.validateCredentials)
	mux.HandleFunc("POST /invoke", a.invokeTool)

	mux.HandleFunc("POST /jobs", a.startJob)
	mux.HandleFunc("GET /jobs", a.listJobs)
	mux.HandleFunc("GET /jobs/{id}", a.getJob)
	mux.HandleFunc("DELETE /jobs/{id}", a.cancelJob)

	mux.HandleFunc("POST /sessions", a.startSession)
	mux.HandleFunc("GET /sessions", a.listSessions)
	mux.HandleFunc("GET /sessions/{id}", a.getSession)
	mux.HandleFunc("POST /sessions/{id}/pause", a.sessionControl(orch.PauseMonitoring))
	mux.HandleFunc("POST /sessions/{id}/resume", a.sessionControl(orch.ResumeMonitoring))
	mux.HandleFunc("POST /sessions/{id}/stop", a.sessionControl(orch.StopMonitoring))

	mux.HandleFunc("GET /conversations", a.listConversations)
	mux.HandleFunc("GET /conversations/{id}", a.getConversation)
	mux.HandleFunc("GET /stats", a.getStats)

	mux.HandleFunc("GET /events/ws", a.eventsWS)

	return mux
}

// credentialRequest is the credential envelope shared by mutating endpoints.
type credentialRequest struct {
	Provider     string            `json:"provider"`
	Credentials  map[string]string `json:"credentials"`
	Organization string            `json:"organization,omitempty"`
	Workspace    string            `json:"workspace,omitempty"`
}

func (c credentialRequest) toModel() models.Credential {
	return models.Credential{
		Provider:     c.Provider,
		Secrets:      c.Credentials,
		Organization: c.Organization,
		Workspace:    c.Workspace,
	}
}

// toolRequest is the body for invoke, job, and session submission.
type toolRequest struct {
	credentialRequest
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

func (a *API) listProviders(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.orch.ListProviders())
}

func (a *API) describeProvider(w http.ResponseWriter, r *http.Request) {
	desc, err := a.orch.DescribeProvider(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, desc)
}

func (a *API) listTools(w http.ResponseWriter, r *http.Request) {
	toolList, err := a.orch.ListTools(r.URL.Query().Get("provider"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toolList)
}

func (a *API) validateCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !a.decode(w, r, &req) {
		return
	}
	record, err := a.orch.ValidateCredentials(r.Context(), req.toModel())
	if err != nil && record == nil {
		a.writeError(w, err)
		return
	}
	// A rejected credential still returns its record so the caller can
	// inspect the fingerprint, but flagged with the auth status code.
	status := http.StatusOK
	if record != nil && !record.Valid {
		status = http.StatusUnauthorized
	}
	a.writeJSON(w, status, record)
}

func (a *API) invokeTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.orch.InvokeTool(r.Context(), req.Tool, req.toModel(), req.Params)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

func (a *API) startJob(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.orch.StartExtraction(r.Context(), req.Tool, req.toModel(), req.Params)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, job)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.orch.ListJobs())
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var job models.ExtractionJob
	var err error
	if r.URL.Query().Get("wait") == "true" {
		job, err = a.orch.WaitJob(r.Context(), id)
	} else {
		job, err = a.orch.GetJob(id)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, job)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.orch.CancelJob(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, job)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if !a.decode(w, r, &req) {
		return
	}
	sess, err := a.orch.StartMonitoring(r.Context(), req.Tool, req.toModel(), req.Params)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, sess)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.orch.ListSessions())
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.orch.GetSession(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sess)
}

func (a *API) sessionControl(op func(string) (models.MonitoringSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := op(r.PathValue("id"))
		if err != nil {
			a.writeError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, sess)
	}
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	page, err := a.orch.ListConversations(r.Context(), store.Filter{
		Provider:      q.Get("provider"),
		TitleContains: q.Get("title"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, page)
}

func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := a.orch.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, conv)
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.orch.GetStats(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, errs.Wrap(errs.KindMalformedPayload, "decoding request body", err))
		return false
	}
	return true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("writing response", "error", err)
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Kind: string(errs.KindExecution), Message: err.Error()}

	var domainErr *errs.Error
	if errors.As(err, &domainErr) {
		body.Kind = string(domainErr.Kind)
		body.Fields = domainErr.Fields
		if domainErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(domainErr.RetryAfter/time.Second)+1))
		}
	}

	status := statusForKind(errs.KindOf(err))
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "kind", body.Kind, "error", err)
	}
	a.writeJSON(w, status, body)
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindUnknownProvider, errs.KindUnknownTool, errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidCredentials, errs.KindCredentialsNotValidated:
		return http.StatusUnauthorized
	case errs.KindSchemaValidation, errs.KindMalformedPayload:
		return http.StatusBadRequest
	case errs.KindJobAlreadyRunning, errs.KindSessionAlreadyActive:
		return http.StatusConflict
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindProviderUnavailable:
		return http.StatusBadGateway
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
