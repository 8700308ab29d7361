// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// An optional YAML file (BOT_CONFIG_FILE) may supply the allow-list and timing knobs;
// environment variables always win over the file.
// For required credentials, use Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by Validate when chat cannot be joined.
var ErrMissingCredentials = errors.New("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN (or DB_DSN with a stored token)")

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string

	// Permissions
	AllowedUsers            []string
	AllowModsAndBroadcaster bool

	// Timers
	TickInterval time.Duration
	UpdateBuffer time.Duration
	MaxMinutes   int

	// Chat connection
	StartupDelay  time.Duration
	RetryDelay    time.Duration
	SettleDelay   time.Duration
	MaxAttempts   int
	RecoveryDelay time.Duration // 0 = stay down once attempts run out
	DedupCapacity int

	// HTTP
	HTTPAddr string

	// Database (optional)
	DBDsn string
}

// fileConfig mirrors the keys accepted in BOT_CONFIG_FILE.
type fileConfig struct {
	Channel                 string   `yaml:"channel"`
	BotUsername             string   `yaml:"bot_username"`
	AllowedUsers            []string `yaml:"allowed_users"`
	AllowModsAndBroadcaster *bool    `yaml:"allow_mods_and_broadcaster"`
	TickInterval            string   `yaml:"tick_interval"`
	UpdateBuffer            string   `yaml:"update_buffer"`
	MaxMinutes              int      `yaml:"max_minutes"`
	HTTPAddr                string   `yaml:"http_addr"`
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use Validate() before connecting to chat.
func Load() (*Config, error) {
	cfg := &Config{
		AllowModsAndBroadcaster: true,
		TickInterval:            time.Second,
		UpdateBuffer:            500 * time.Millisecond,
		MaxMinutes:              7 * 24 * 60,
		StartupDelay:            2 * time.Second,
		RetryDelay:              5 * time.Second,
		SettleDelay:             time.Second,
		MaxAttempts:             3,
		DedupCapacity:           100,
		HTTPAddr:                ":8080",
	}

	if path := os.Getenv("BOT_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	setString(&cfg.TwitchChannel, "TWITCH_CHANNEL")
	setString(&cfg.TwitchBotUsername, "TWITCH_BOT_USERNAME")
	setString(&cfg.TwitchOAuthToken, "TWITCH_OAUTH_TOKEN")
	setString(&cfg.TwitchClientID, "TWITCH_CLIENT_ID")
	setString(&cfg.TwitchClientSecret, "TWITCH_CLIENT_SECRET")
	setString(&cfg.DBDsn, "DB_DSN")
	cfg.TwitchChannel = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.TwitchChannel)), "#")
	cfg.TwitchBotUsername = strings.ToLower(strings.TrimSpace(cfg.TwitchBotUsername))

	if v := os.Getenv("ALLOWED_USERS"); v != "" {
		cfg.AllowedUsers = SplitList(v)
	}
	if v := os.Getenv("ALLOW_MODS_AND_BROADCASTER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ALLOW_MODS_AND_BROADCASTER: %w", err)
		}
		cfg.AllowModsAndBroadcaster = b
	}

	// HTTP: HTTP_ADDR wins, PORT is accepted for platforms that only inject a port
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	} else if p := os.Getenv("PORT"); p != "" {
		cfg.HTTPAddr = ":" + p
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TIMER_TICK_INTERVAL", &cfg.TickInterval},
		{"TIMER_UPDATE_BUFFER", &cfg.UpdateBuffer},
		{"CHAT_STARTUP_DELAY", &cfg.StartupDelay},
		{"CHAT_RETRY_DELAY", &cfg.RetryDelay},
		{"CHAT_SETTLE_DELAY", &cfg.SettleDelay},
		{"CHAT_RECOVERY_DELAY", &cfg.RecoveryDelay},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return nil, err
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"TIMER_MAX_MINUTES", &cfg.MaxMinutes},
		{"CHAT_MAX_ATTEMPTS", &cfg.MaxAttempts},
		{"DEDUP_CAPACITY", &cfg.DedupCapacity},
	}
	for _, i := range ints {
		if err := setPositiveInt(i.dst, i.key); err != nil {
			return nil, err
		}
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("invalid TIMER_TICK_INTERVAL: must be positive")
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read BOT_CONFIG_FILE: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse BOT_CONFIG_FILE %s: %w", path, err)
	}
	if fc.Channel != "" {
		c.TwitchChannel = fc.Channel
	}
	if fc.BotUsername != "" {
		c.TwitchBotUsername = fc.BotUsername
	}
	if len(fc.AllowedUsers) > 0 {
		c.AllowedUsers = fc.AllowedUsers
	}
	if fc.AllowModsAndBroadcaster != nil {
		c.AllowModsAndBroadcaster = *fc.AllowModsAndBroadcaster
	}
	if fc.TickInterval != "" {
		d, err := time.ParseDuration(fc.TickInterval)
		if err != nil {
			return fmt.Errorf("parse BOT_CONFIG_FILE tick_interval: %w", err)
		}
		c.TickInterval = d
	}
	if fc.UpdateBuffer != "" {
		d, err := time.ParseDuration(fc.UpdateBuffer)
		if err != nil {
			return fmt.Errorf("parse BOT_CONFIG_FILE update_buffer: %w", err)
		}
		c.UpdateBuffer = d
	}
	if fc.MaxMinutes > 0 {
		c.MaxMinutes = fc.MaxMinutes
	}
	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	return nil
}

// Validate checks the fields required to join chat. A missing token is acceptable
// when a database is configured, since the token may be stored there.
func (c *Config) Validate() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" {
		return ErrMissingCredentials
	}
	if c.TwitchOAuthToken == "" && c.DBDsn == "" {
		return ErrMissingCredentials
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid %s: negative duration", key)
	}
	*dst = d
	return nil
}

func setPositiveInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return fmt.Errorf("invalid %s: must be positive", key)
	}
	*dst = n
	return nil
}
