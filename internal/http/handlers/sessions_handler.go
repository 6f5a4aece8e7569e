package handlers

import (
	"net/http"

	"chargewatch/internal/repository"
	"chargewatch/internal/service"
)

func sessionFilterFromQuery(r *http.Request) repository.SessionFilter {
	q := r.URL.Query()
	return repository.SessionFilter{
		ChargerName:   q.Get("charger"),
		ConnectorID:   q.Get("connector_id"),
		ConnectorType: q.Get("connector_type"),
	}
}

// NewSessionsHandler returns the GET /sessions handler: closed sessions
// merged with live open ones, open first.
func NewSessionsHandler(svc *service.MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := svc.List(r.Context(), sessionFilterFromQuery(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": sessions,
		})
	}
}

// NewSessionStatsHandler returns the GET /sessions/stats handler.
func NewSessionStatsHandler(svc *service.MonitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context(), sessionFilterFromQuery(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to compute stats")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
