package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTokenNotFound is returned when no token row exists for a provider.
var ErrTokenNotFound = errors.New("oauth token not found")

// Token is a stored OAuth token in plaintext form.
type Token struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// UpsertOAuthToken stores or replaces the token for tok.Provider. With a sealer
// configured both secrets are encrypted and encryption_version is 1.
func (s *Store) UpsertOAuthToken(ctx context.Context, tok Token) error {
	access, refresh := tok.AccessToken, tok.RefreshToken
	version, keyID := 0, ""
	if s.sealer != nil {
		var err error
		if access, err = s.sealer.Seal(access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = s.sealer.Seal(refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		version, keyID = 1, s.sealer.KeyID()
	}
	var expiry int64
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.Unix()
	}
	q := s.rebind(`INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at_unix, scope, encryption_version, encryption_key_id, updated_at_unix)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_at_unix=excluded.expires_at_unix,
			scope=excluded.scope,
			encryption_version=excluded.encryption_version,
			encryption_key_id=excluded.encryption_key_id,
			updated_at_unix=excluded.updated_at_unix`)
	if _, err := s.DB.ExecContext(ctx, q, tok.Provider, access, refresh, expiry, tok.Scope, version, keyID, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert oauth token %s: %w", tok.Provider, err)
	}
	return nil
}

// GetOAuthToken loads and, when needed, decrypts the token for provider.
// Plaintext rows (encryption_version 0) are returned as stored.
func (s *Store) GetOAuthToken(ctx context.Context, provider string) (Token, error) {
	var (
		tok     = Token{Provider: provider}
		expiry  int64
		version int
	)
	row := s.DB.QueryRowContext(ctx, s.rebind(`SELECT access_token, refresh_token, expires_at_unix, scope, encryption_version FROM oauth_tokens WHERE provider = ?`), provider)
	err := row.Scan(&tok.AccessToken, &tok.RefreshToken, &expiry, &tok.Scope, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("get oauth token %s: %w", provider, err)
	}
	if expiry > 0 {
		tok.Expiry = time.Unix(expiry, 0)
	}
	if version == 1 {
		if s.sealer == nil {
			return Token{}, errors.New("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if tok.AccessToken, err = s.sealer.Open(tok.AccessToken); err != nil {
			return Token{}, fmt.Errorf("decrypt access token: %w", err)
		}
		if tok.RefreshToken, err = s.sealer.Open(tok.RefreshToken); err != nil {
			return Token{}, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return tok, nil
}

// PlaintextProviders lists providers whose token row is not encrypted.
func (s *Store) PlaintextProviders(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE encryption_version = 0 ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext tokens: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
