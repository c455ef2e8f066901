package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/webhook"
)

type EndpointHandler struct {
	manager *webhook.Manager
}

func NewEndpointHandler(manager *webhook.Manager) *EndpointHandler {
	return &EndpointHandler{manager: manager}
}

type createEndpointRequest struct {
	URL           string            `json:"url"`
	Description   string            `json:"description"`
	EventTypes    []string          `json:"event_types"`
	Headers       map[string]string `json:"headers"`
	TimeoutMs     int               `json:"timeout_ms"`
	RetryAttempts int               `json:"retry_attempts"`
}

func validEndpointURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// redact clears the signing secret. It is shown exactly once, on creation.
func redact(ep *models.Endpoint) *models.Endpoint {
	cp := *ep
	cp.Secret = ""
	return &cp
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !validEndpointURL(req.URL) {
		writeError(w, http.StatusBadRequest, "url must be a valid HTTP or HTTPS URL")
		return
	}
	if len(req.EventTypes) == 0 {
		writeError(w, http.StatusBadRequest, "event_types is required")
		return
	}

	ep := &models.Endpoint{
		TenantID:      tenant.ID,
		URL:           req.URL,
		Description:   req.Description,
		EventTypes:    req.EventTypes,
		Headers:       req.Headers,
		TimeoutMs:     req.TimeoutMs,
		RetryAttempts: req.RetryAttempts,
	}

	if err := h.manager.CreateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

// owned loads the endpoint and checks it belongs to the calling tenant.
func (h *EndpointHandler) owned(w http.ResponseWriter, r *http.Request) *models.Endpoint {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	id := chi.URLParam(r, "id")
	ep, err := h.manager.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return nil
	}
	if ep == nil || ep.TenantID != tenant.ID {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return nil
	}
	return ep
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	ep := h.owned(w, r)
	if ep == nil {
		return
	}
	writeJSON(w, http.StatusOK, redact(ep))
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eps, err := h.manager.ListEndpoints(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	out := make([]*models.Endpoint, 0, len(eps))
	for i := range eps {
		out = append(out, redact(&eps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateEndpointRequest struct {
	URL           string            `json:"url"`
	Description   string            `json:"description"`
	EventTypes    []string          `json:"event_types"`
	Headers       map[string]string `json:"headers"`
	TimeoutMs     *int              `json:"timeout_ms"`
	RetryAttempts *int              `json:"retry_attempts"`
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	ep := h.owned(w, r)
	if ep == nil {
		return
	}

	var req updateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != "" {
		if !validEndpointURL(req.URL) {
			writeError(w, http.StatusBadRequest, "url must be a valid HTTP or HTTPS URL")
			return
		}
		ep.URL = req.URL
	}
	ep.Description = req.Description
	if req.EventTypes != nil {
		ep.EventTypes = req.EventTypes
	}
	if req.Headers != nil {
		ep.Headers = req.Headers
	}
	if req.TimeoutMs != nil {
		ep.TimeoutMs = *req.TimeoutMs
	}
	if req.RetryAttempts != nil {
		ep.RetryAttempts = *req.RetryAttempts
	}

	if err := h.manager.UpdateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}
	writeJSON(w, http.StatusOK, redact(ep))
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ep := h.owned(w, r)
	if ep == nil {
		return
	}

	if err := h.manager.DeleteEndpoint(r.Context(), ep.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ep := h.owned(w, r)
	if ep == nil {
		return
	}

	ep.Active = !ep.Active
	if err := h.manager.UpdateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle endpoint")
		return
	}
	writeJSON(w, http.StatusOK, redact(ep))
}

func (h *EndpointHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ep := h.owned(w, r)
	if ep == nil {
		return
	}

	stats, err := h.manager.EndpointStats(r.Context(), ep.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
