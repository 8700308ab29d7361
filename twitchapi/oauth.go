// Package twitchapi talks to the Twitch identity service: refreshing the bot's
// user token and validating it before joining chat.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

const defaultValidateURL = "https://id.twitch.tv/oauth2/validate"

// ErrInvalidToken is returned by ValidateToken when Twitch rejects the token.
var ErrInvalidToken = errors.New("twitch token invalid or expired")

// ChatScopes are required for reading and writing chat over IRC.
var ChatScopes = []string{"chat:read", "chat:edit"}

// Client calls id.twitch.tv. The zero URLs select the production endpoints.
type Client struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	TokenURL     string
	ValidateURL  string
}

// RefreshResult is the outcome of a refresh_token grant.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        []string
}

// Validation is the body of a successful /oauth2/validate call.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) oauthConfig() *oauth2.Config {
	ep := twitch.Endpoint
	if c.TokenURL != "" {
		ep = oauth2.Endpoint{TokenURL: c.TokenURL, AuthStyle: oauth2.AuthStyleInParams}
	}
	return &oauth2.Config{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Endpoint: ep}
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if c.ClientID == "" || c.ClientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing clientID/clientSecret/refreshToken")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient())
	src := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("twitch refresh failed: %w", err)
	}
	return &RefreshResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scope:        scopesFromExtra(tok.Extra("scope")),
	}, nil
}

// Twitch returns scope as a JSON array.
func scopesFromExtra(v any) []string {
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return strings.Fields(s)
	}
	return nil
}

// ValidateToken checks token against Twitch. Tokens may carry an "oauth:" prefix.
func (c *Client) ValidateToken(ctx context.Context, token string) (*Validation, error) {
	u := c.ValidateURL
	if u == "" {
		u = defaultValidateURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+strings.TrimPrefix(token, "oauth:"))
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("twitch validate failed: %s: %s", resp.Status, string(b))
	}
	var v Validation
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode validate response: %w", err)
	}
	return &v, nil
}

// MissingScopes lists the chat scopes the token lacks.
func (v *Validation) MissingScopes() []string {
	var missing []string
	for _, s := range ChatScopes {
		if !slices.Contains(v.Scopes, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// ExpiresAt converts ExpiresIn to an absolute instant. Zero means no expiry reported.
func (v *Validation) ExpiresAt(now time.Time) time.Time {
	if v.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(v.ExpiresIn) * time.Second)
}
