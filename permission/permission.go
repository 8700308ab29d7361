// Package permission decides which chat identities may mutate timers.
package permission

import (
	"log/slog"
	"slices"
	"strings"
)

// Roles are the chat badges relevant to authorization.
type Roles struct {
	Broadcaster bool
	Moderator   bool
}

// Config is immutable after construction.
type Config struct {
	AllowList               []string
	AllowModsAndBroadcaster bool
}

// Gate evaluates authorization against a fixed Config.
type Gate struct {
	allowed map[string]struct{}
	mods    bool
}

// NewGate lower-cases and de-duplicates the allow-list.
func NewGate(cfg Config) *Gate {
	g := &Gate{allowed: make(map[string]struct{}, len(cfg.AllowList)), mods: cfg.AllowModsAndBroadcaster}
	for _, u := range cfg.AllowList {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			g.allowed[u] = struct{}{}
		}
	}
	return g
}

// IsAuthorized applies the rules in order; the first match wins.
func (g *Gate) IsAuthorized(identity string, roles Roles) bool {
	allowed, reason := g.evaluate(identity, roles)
	slog.Debug("permission check",
		slog.String("component", "permission"),
		slog.String("user", identity),
		slog.Bool("allowed", allowed),
		slog.String("reason", reason))
	return allowed
}

func (g *Gate) evaluate(identity string, roles Roles) (bool, string) {
	if roles.Broadcaster {
		return true, "broadcaster"
	}
	if g.mods && roles.Moderator {
		return true, "moderator"
	}
	if len(g.allowed) > 0 {
		if _, ok := g.allowed[strings.ToLower(identity)]; ok {
			return true, "allow_list"
		}
		return false, "not_in_allow_list"
	}
	if !g.mods {
		// no allow-list and no role gate: everyone may use timers
		return true, "open"
	}
	return false, "not_moderator"
}

// Open reports whether the gate admits every identity.
func (g *Gate) Open() bool { return len(g.allowed) == 0 && !g.mods }

// AllowList returns the normalized allow-list, sorted for display.
func (g *Gate) AllowList() []string {
	out := make([]string, 0, len(g.allowed))
	for u := range g.allowed {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Summary describes the policy for the status page.
func (g *Gate) Summary() string {
	if g.Open() {
		return "everyone"
	}
	var parts []string
	if g.mods {
		parts = append(parts, "broadcaster and moderators")
	} else {
		parts = append(parts, "broadcaster")
	}
	if len(g.allowed) > 0 {
		parts = append(parts, strings.Join(g.AllowList(), ", "))
	}
	return strings.Join(parts, "; ")
}
