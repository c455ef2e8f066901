package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saralbooks/ledgerhooks/internal/event"
	"github.com/saralbooks/ledgerhooks/internal/models"
	"github.com/saralbooks/ledgerhooks/internal/storage"
	"github.com/saralbooks/ledgerhooks/internal/webhook"
)

type EventHandler struct {
	manager *webhook.Manager
	events  storage.EventStore
}

func NewEventHandler(manager *webhook.Manager, events storage.EventStore) *EventHandler {
	return &EventHandler{manager: manager, events: events}
}

type publishEventRequest struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	UserID    string          `json:"user_id"`
}

const maxPayloadSize = 256 * 1024 // 256KB

func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	ev, err := h.manager.PublishEvent(r.Context(), event.Input{
		Type: req.EventType,
		Data: req.Data,
		Metadata: models.EventMetadata{
			TenantID: tenant.ID,
			UserID:   req.UserID,
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	writeJSON(w, http.StatusAccepted, ev)
}

func (h *EventHandler) PublishBatch(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 4*maxPayloadSize)
	var reqs []publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one event is required")
		return
	}

	ins := make([]event.Input, 0, len(reqs))
	for _, req := range reqs {
		if req.EventType == "" || len(req.Data) == 0 {
			writeError(w, http.StatusBadRequest, "every event needs event_type and data")
			return
		}
		ins = append(ins, event.Input{
			Type: req.EventType,
			Data: req.Data,
			Metadata: models.EventMetadata{
				TenantID: tenant.ID,
				UserID:   req.UserID,
			},
		})
	}

	evs, err := h.manager.PublishBatch(r.Context(), ins)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish events")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"published": len(evs),
		"events":    evs,
	})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	ev, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if ev == nil || ev.Metadata.TenantID != tenant.ID {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "type query parameter is required")
		return
	}

	evs, err := h.events.ListEventsByType(r.Context(), eventType, tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evs == nil {
		evs = []models.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}
