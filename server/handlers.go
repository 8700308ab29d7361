package server

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	src    StatusSource
	events EventSource
	page   *template.Template
}

// NewHandlers creates handlers reading from src. events may be nil.
func NewHandlers(src StatusSource, events EventSource) *Handlers {
	return &Handlers{src: src, events: events, page: indexTemplate}
}

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(secs int64) string { return (time.Duration(secs) * time.Second).String() },
}).Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Bot}} timer bot</title></head>
<body>
<h1>{{.Bot}}</h1>
<ul>
<li>Channel: #{{.Channel}}</li>
<li>Permissions: {{.Permissions}}</li>
<li>Connected: {{if .Connected}}yes{{else}}no ({{.State}}){{end}}</li>
<li>Uptime: {{uptime .UptimeSeconds}}</li>
<li>Active timers: {{.ActiveTimers}}</li>
</ul>
</body>
</html>
`))

// HandleIndex renders the human-readable status page.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, h.src.Status()); err != nil {
		slog.Error("render status page", slog.Any("err", err), slog.String("component", "http"))
	}
}

// HandleStatus returns the bot status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.src.Status())
}
