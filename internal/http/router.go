package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Sessions     http.HandlerFunc
	SessionStats http.HandlerFunc
	Rebuild      http.HandlerFunc
	WipeEvents   http.HandlerFunc
	LiveStream   http.HandlerFunc
	Health       http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Sessions != nil {
		mux.Handle("/sessions", method(http.MethodGet, routes.Sessions))
	}
	if routes.SessionStats != nil {
		mux.Handle("/sessions/stats", method(http.MethodGet, routes.SessionStats))
	}
	if routes.Rebuild != nil {
		mux.Handle("/admin/rebuild", method(http.MethodPost, routes.Rebuild))
	}
	if routes.WipeEvents != nil {
		mux.Handle("/admin/events/wipe", method(http.MethodPost, routes.WipeEvents))
	}
	if routes.LiveStream != nil {
		mux.Handle("/ws/live", method(http.MethodGet, routes.LiveStream))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
