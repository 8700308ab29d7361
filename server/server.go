// Package server exposes the bot's HTTP surface: a status page, JSON status,
// liveness and readiness probes, Prometheus metrics and admin listings.
// Every request carries a correlation id and, when tracing is enabled, a span.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-timer/chat"
	"github.com/onnwee/chat-timer/db"
	"github.com/onnwee/chat-timer/telemetry"
	"github.com/onnwee/chat-timer/timer"
)

// StatusSource is the read side of the bot. *chat.Bot implements it.
type StatusSource interface {
	Status() chat.Status
	Timers() []timer.Status
	Ready() bool
}

// EventSource lists journaled timer events. *db.Store implements it.
type EventSource interface {
	RecentTimerEvents(ctx context.Context, limit int) ([]db.TimerEvent, error)
}

// NewMux returns the HTTP handler with all routes. events may be nil when no
// database is configured. ctx bounds the rate limiter's cleanup goroutine.
func NewMux(ctx context.Context, src StatusSource, events EventSource) http.Handler {
	opts := OptionsFromEnv()
	return newMux(ctx, src, events, opts)
}

func newMux(ctx context.Context, src StatusSource, events EventSource, opts Options) http.Handler {
	h := NewHandlers(src, events)
	limiter := newIPRateLimiter(ctx, opts.RateLimit)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/admin/timers", h.HandleAdminTimers)
	mux.HandleFunc("/admin/events", h.HandleAdminEvents)
	mux.HandleFunc("/", h.HandleIndex)

	admin := adminAuth(rateLimitMiddleware(mux, limiter), opts.Auth)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			admin.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path, telemetry.HTTPAttrs(r.Method, r.URL.Path)...)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		routed.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
	return withCORSConfig(handler, opts.CORS)
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
