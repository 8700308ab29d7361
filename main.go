// Command chat-timer runs a Twitch chat bot that keeps per-user countdown timers.
// It:
//   - Loads configuration (env, optional .env and YAML overlay) and initializes structured logging.
//   - Optionally opens a database for the encrypted bot token and the timer event journal.
//   - Joins the configured channel over IRC with bounded reconnects.
//   - Exposes a small HTTP server with /, /status, /healthz, /readyz, /metrics and /admin listings.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-timer/chat"
	"github.com/onnwee/chat-timer/clock"
	"github.com/onnwee/chat-timer/config"
	"github.com/onnwee/chat-timer/crypto"
	"github.com/onnwee/chat-timer/db"
	"github.com/onnwee/chat-timer/oauth"
	"github.com/onnwee/chat-timer/permission"
	"github.com/onnwee/chat-timer/server"
	"github.com/onnwee/chat-timer/telemetry"
	"github.com/onnwee/chat-timer/timer"
	"github.com/onnwee/chat-timer/twitchapi"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

// run wires everything and blocks until shutdown. Deferred cleanup always runs
// before main exits with the returned code.
func run() int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	telemetry.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		return 1
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("chat-timer", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identity := &twitchapi.Client{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}

	var (
		store       *db.Store
		journal     *db.Journal
		stopJournal = func() {}
	)
	if cfg.DBDsn != "" {
		store, err = openStore(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("database setup failed", slog.Any("err", err), slog.String("component", "db"))
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		journal, stopJournal = startJournal(ctx, store)
		if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
			startTokenRefresher(ctx, store, identity)
		}
	}

	token := chat.StaticToken(cfg.TwitchOAuthToken)
	if cfg.TwitchOAuthToken == "" {
		token = storedToken(store)
	}
	validateToken(ctx, identity, token)

	opts := chat.Options{
		BotName: cfg.TwitchBotUsername,
		Channel: cfg.TwitchChannel,
		Permissions: permission.Config{
			AllowList:               cfg.AllowedUsers,
			AllowModsAndBroadcaster: cfg.AllowModsAndBroadcaster,
		},
		Timer: timer.Options{TickInterval: cfg.TickInterval, UpdateBuffer: cfg.UpdateBuffer},
		Supervisor: chat.SupervisorOptions{
			StartupDelay:  cfg.StartupDelay,
			RetryDelay:    cfg.RetryDelay,
			SettleDelay:   cfg.SettleDelay,
			MaxAttempts:   cfg.MaxAttempts,
			RecoveryDelay: cfg.RecoveryDelay,
			OnlineMessage: chat.DefaultSupervisorOptions().OnlineMessage,
		},
		MaxMinutes:    cfg.MaxMinutes,
		DedupCapacity: cfg.DedupCapacity,
	}
	if journal != nil {
		opts.Journal = journal
	}
	transport := chat.NewIRCTransport(cfg.TwitchBotUsername, cfg.TwitchChannel, token)
	bot := chat.NewBot(opts, clock.Real{}, transport)
	bot.Start()
	// stopJournal waits for the writer, so the bot must be down first
	defer stopJournal()
	defer bot.Shutdown()

	startPprof()

	var events server.EventSource
	if store != nil {
		events = store
	}
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, bot, events))
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-srvErr:
		if err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			return 1
		}
		slog.Info("http server stopped, shutting down")
	}
	return 0
}

// openStore connects, migrates and installs the token sealer. Any failure is
// fatal to the caller since DB_DSN was set explicitly.
func openStore(ctx context.Context, dsn string) (*db.Store, error) {
	store, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	sealer, err := crypto.FromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	store.WithSealer(sealer)
	slog.Info("database ready", slog.String("dialect", store.Dialect.String()), slog.String("component", "db"))
	return store, nil
}

// startJournal runs the journal writer until the returned stop func is called.
// stop flushes the journal and waits for the writer to exit.
func startJournal(ctx context.Context, store *db.Store) (*db.Journal, func()) {
	journal := db.NewJournal(store, 0)
	jctx, jcancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		journal.Run(jctx)
	}()
	return journal, func() {
		jcancel()
		<-done
	}
}

func startTokenRefresher(ctx context.Context, store *db.Store, identity *twitchapi.Client) {
	oauth.StartRefresher(ctx, store, "twitch", 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (db.Token, error) {
		res, err := identity.RefreshToken(rctx, refreshToken)
		if err != nil {
			return db.Token{}, err
		}
		return db.Token{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			Expiry:       res.Expiry,
			Scope:        strings.Join(res.Scope, " "),
		}, nil
	})
}

// storedToken reads the twitch token from the database on every connect attempt.
func storedToken(store *db.Store) chat.TokenFunc {
	return func(ctx context.Context) (string, error) {
		if store == nil {
			return "", errors.New("no oauth token configured")
		}
		tok, err := store.GetOAuthToken(ctx, "twitch")
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}
}

// validateToken logs what Twitch reports about the chat token. It never blocks startup.
func validateToken(ctx context.Context, identity *twitchapi.Client, token chat.TokenFunc) {
	vctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	tok, err := token(vctx)
	if err != nil {
		slog.Warn("chat token unavailable", slog.Any("err", err), slog.String("component", "twitch"))
		return
	}
	v, err := identity.ValidateToken(vctx, tok)
	if err != nil {
		slog.Warn("chat token validation failed", slog.Any("err", err), slog.String("component", "twitch"))
		return
	}
	attrs := []any{slog.String("login", v.Login), slog.Time("expires_at", v.ExpiresAt(time.Now())), slog.String("component", "twitch")}
	if missing := v.MissingScopes(); len(missing) > 0 {
		slog.Warn("chat token missing scopes", append(attrs, slog.Any("missing", missing))...)
		return
	}
	slog.Info("chat token validated", attrs...)
}

// startPprof serves /debug/pprof on PPROF_ADDR when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
