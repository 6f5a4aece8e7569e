package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargewatch/internal/repository"
	"chargewatch/internal/service"
)

// AdminHandler holds operational endpoints.
type AdminHandler struct {
	svc    *service.MonitorService
	logger *zap.Logger
}

// NewAdminHandler builds the handler set.
func NewAdminHandler(svc *service.MonitorService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// HandleRebuild handles POST /admin/rebuild. Replays the full event log into
// the session store (destructive replace) and reports the session count so a
// partial failure is never silent.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.EventFilter{
		ChargerName:   q.Get("charger"),
		ConnectorID:   q.Get("connector_id"),
		ConnectorType: q.Get("connector_type"),
	}

	count, err := h.svc.Rebuild(r.Context(), filter)
	if err != nil {
		h.logger.Error("rebuild failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": count,
	})
}

// HandleWipeEvents handles POST /admin/events/wipe. Irreversible.
func (h *AdminHandler) HandleWipeEvents(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.WipeEvents(r.Context())
	if err != nil {
		h.logger.Error("event wipe failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "wipe failed")
		return
	}
	h.logger.Warn("event log wiped", zap.Int64("deleted", deleted))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
	})
}
