// Package oauth keeps the stored bot token fresh. It performs jittered checks
// and refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/chat-timer/db"
)

// TokenStore persists tokens by provider. *db.Store implements it.
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (db.Token, error)
	UpsertOAuthToken(ctx context.Context, tok db.Token) error
}

// RefreshFunc performs the provider-specific refresh grant.
type RefreshFunc func(ctx context.Context, refreshToken string) (db.Token, error)

// RefreshIfDue refreshes provider's token when it expires within window.
// It reports whether a refresh happened. Tokens without a refresh token or
// without a known expiry are left alone.
func RefreshIfDue(ctx context.Context, store TokenStore, provider string, window time.Duration, fn RefreshFunc) (bool, error) {
	cur, err := store.GetOAuthToken(ctx, provider)
	if errors.Is(err, db.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.RefreshToken == "" || cur.Expiry.IsZero() {
		return false, nil
	}
	if time.Until(cur.Expiry) > window {
		return false, nil
	}

	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	next, err := fn(rctx, cur.RefreshToken)
	cancel()
	if err != nil {
		return false, fmt.Errorf("refresh %s token: %w", provider, err)
	}
	next.Provider = provider
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	next.Scope = strings.TrimSpace(next.Scope)
	if next.Scope == "" {
		next.Scope = cur.Scope
	}
	if err := store.UpsertOAuthToken(ctx, next); err != nil {
		return false, fmt.Errorf("persist %s token: %w", provider, err)
	}
	return true, nil
}

// StartRefresher launches a goroutine that periodically checks provider's token and refreshes it.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store TokenStore, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			refreshed, err := RefreshIfDue(ctx, store, provider, window, fn)
			switch {
			case err != nil:
				slog.Warn("token refresh failed", slog.String("component", "oauth"), slog.String("provider", provider), slog.Any("err", err))
			case refreshed:
				slog.Info("token refreshed", slog.String("component", "oauth"), slog.String("provider", provider))
			}

			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2+1) - jitterRange)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
			}
		}
	}()
}
