package api

import (
	"net/http"

	"github.com/saralbooks/ledgerhooks/internal/webhook"
)

type StatsHandler struct {
	manager *webhook.Manager
}

func NewStatsHandler(manager *webhook.Manager) *StatsHandler {
	return &StatsHandler{manager: manager}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ledgerhooks",
	})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.manager.TenantStats(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
