package server

import (
	"net/http"
)

// HandleHealthz answers liveness probes. The process is alive if it can serve.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the bot holds a live chat session.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !h.src.Ready() {
		st := h.src.Status()
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":           "not_ready",
			"failed_check":     "chat",
			"state":            st.State,
			"connect_attempts": st.ConnectAttempts,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
