// Command bot-token manages the chat token kept in the bot's database.
//
// It either stores a token (used when TWITCH_OAUTH_TOKEN is empty) or, with
// --seal, encrypts every plaintext token row with ENCRYPTION_KEY.
//
// Usage:
//
//	bot-token --access TOKEN [--refresh TOKEN] [--expires-in 4h] [--scope "chat:read chat:edit"]
//	bot-token --seal [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: database connection string (required)
//	ENCRYPTION_KEY: base64 32-byte key (required for --seal, optional otherwise)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/onnwee/chat-timer/crypto"
	"github.com/onnwee/chat-timer/db"
)

type options struct {
	provider  string
	access    string
	refresh   string
	expiresIn time.Duration
	scope     string
	seal      bool
	dryRun    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.provider, "provider", "twitch", "token provider key")
	flag.StringVar(&opts.access, "access", "", "access token to store")
	flag.StringVar(&opts.refresh, "refresh", "", "refresh token to store")
	flag.DurationVar(&opts.expiresIn, "expires-in", 0, "lifetime of the access token (0 = unknown)")
	flag.StringVar(&opts.scope, "scope", "", "space separated scopes")
	flag.BoolVar(&opts.seal, "seal", false, "encrypt plaintext token rows")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "with --seal, only report what would change")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(context.Background(), os.Getenv("DB_DSN"), opts); err != nil {
		slog.Error("bot-token failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn string, opts options) error {
	if dsn == "" {
		return errors.New("DB_DSN environment variable is required")
	}
	if !opts.seal && opts.access == "" {
		return errors.New("either --access or --seal is required")
	}
	sealer, err := crypto.FromEnv()
	if err != nil {
		return err
	}
	if opts.seal && sealer == nil {
		return errors.New("ENCRYPTION_KEY environment variable is required for --seal")
	}

	store, err := db.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close database", slog.Any("error", err))
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	store.WithSealer(sealer)

	if opts.seal {
		n, err := sealTokens(ctx, store, opts.dryRun)
		if err != nil {
			return err
		}
		slog.Info("seal summary", slog.Int("tokens", n), slog.Bool("dry_run", opts.dryRun))
		return nil
	}
	return storeToken(ctx, store, opts, time.Now())
}

func storeToken(ctx context.Context, store *db.Store, opts options, now time.Time) error {
	tok := db.Token{
		Provider:     opts.provider,
		AccessToken:  strings.TrimPrefix(opts.access, "oauth:"),
		RefreshToken: opts.refresh,
		Scope:        strings.Join(strings.Fields(opts.scope), " "),
	}
	if opts.expiresIn > 0 {
		tok.Expiry = now.Add(opts.expiresIn)
	}
	if err := store.UpsertOAuthToken(ctx, tok); err != nil {
		return err
	}
	slog.Info("token stored", slog.String("provider", tok.Provider), slog.Bool("has_refresh", tok.RefreshToken != ""))
	return nil
}

// sealTokens rewrites every plaintext row through the store's sealer. It
// returns the number of rows sealed, or that would be sealed on a dry run.
func sealTokens(ctx context.Context, store *db.Store, dryRun bool) (int, error) {
	providers, err := store.PlaintextProviders(ctx)
	if err != nil {
		return 0, err
	}
	if len(providers) == 0 {
		slog.Info("no plaintext tokens found")
		return 0, nil
	}
	sealed, failed := 0, 0
	for i, p := range providers {
		logger := slog.With(slog.String("provider", p), slog.Int("index", i+1), slog.Int("total", len(providers)))
		if dryRun {
			logger.Info("would seal token (dry-run)")
			sealed++
			continue
		}
		tok, err := store.GetOAuthToken(ctx, p)
		if err == nil {
			err = store.UpsertOAuthToken(ctx, tok)
		}
		if err != nil {
			logger.Error("failed to seal token", slog.Any("error", err))
			failed++
			continue
		}
		logger.Info("sealed token")
		sealed++
	}
	if failed > 0 {
		return sealed, fmt.Errorf("sealing completed with %d errors", failed)
	}
	return sealed, nil
}
