package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/chat-timer/db"
	"github.com/onnwee/chat-timer/telemetry"
	"github.com/onnwee/chat-timer/timer"
)

// HandleAdminTimers lists every live timer ordered by owner.
func (h *Handlers) HandleAdminTimers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	timers := h.src.Timers()
	if timers == nil {
		timers = []timer.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(timers), "timers": timers})
}

// HandleAdminEvents returns the newest journaled timer events. ?limit= caps the
// result (default 50, max 500).
func (h *Handlers) HandleAdminEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.events == nil {
		http.Error(w, "event journal not configured", http.StatusNotFound)
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	events, err := h.events.RecentTimerEvents(r.Context(), limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list timer events", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []db.TimerEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(events), "events": events})
}
