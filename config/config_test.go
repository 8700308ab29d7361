package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BOT_CONFIG_FILE", "TWITCH_CHANNEL", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN",
		"ALLOWED_USERS", "ALLOW_MODS_AND_BROADCASTER", "HTTP_ADDR", "PORT", "DB_DSN",
		"TIMER_TICK_INTERVAL", "TIMER_UPDATE_BUFFER", "TIMER_MAX_MINUTES",
		"CHAT_STARTUP_DELAY", "CHAT_RETRY_DELAY", "CHAT_SETTLE_DELAY", "CHAT_RECOVERY_DELAY", "CHAT_MAX_ATTEMPTS", "DEDUP_CAPACITY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.AllowModsAndBroadcaster {
		t.Error("expected mods and broadcaster allowed by default")
	}
	if cfg.TickInterval != time.Second || cfg.UpdateBuffer != 500*time.Millisecond {
		t.Errorf("tick=%v buffer=%v", cfg.TickInterval, cfg.UpdateBuffer)
	}
	if cfg.MaxAttempts != 3 || cfg.DedupCapacity != 100 || cfg.MaxMinutes != 10080 {
		t.Errorf("attempts=%d dedup=%d max=%d", cfg.MaxAttempts, cfg.DedupCapacity, cfg.MaxMinutes)
	}
	if cfg.StartupDelay != 2*time.Second || cfg.RetryDelay != 5*time.Second || cfg.SettleDelay != time.Second {
		t.Errorf("delays startup=%v retry=%v settle=%v", cfg.StartupDelay, cfg.RetryDelay, cfg.SettleDelay)
	}
	if cfg.RecoveryDelay != 0 {
		t.Errorf("RecoveryDelay = %v, want disabled", cfg.RecoveryDelay)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", "#SomeStreamer")
	t.Setenv("TWITCH_BOT_USERNAME", "TimerBot")
	t.Setenv("ALLOWED_USERS", "alice, Bob ,,carol")
	t.Setenv("ALLOW_MODS_AND_BROADCASTER", "false")
	t.Setenv("PORT", "9000")
	t.Setenv("CHAT_RETRY_DELAY", "250ms")
	t.Setenv("CHAT_RECOVERY_DELAY", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "somestreamer" {
		t.Errorf("TwitchChannel = %q", cfg.TwitchChannel)
	}
	if cfg.TwitchBotUsername != "timerbot" {
		t.Errorf("TwitchBotUsername = %q", cfg.TwitchBotUsername)
	}
	if want := []string{"alice", "Bob", "carol"}; !reflect.DeepEqual(cfg.AllowedUsers, want) {
		t.Errorf("AllowedUsers = %v, want %v", cfg.AllowedUsers, want)
	}
	if cfg.AllowModsAndBroadcaster {
		t.Error("AllowModsAndBroadcaster should be false")
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay)
	}
	if cfg.RecoveryDelay != 15*time.Minute {
		t.Errorf("RecoveryDelay = %v", cfg.RecoveryDelay)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ALLOW_MODS_AND_BROADCASTER", "maybe"},
		{"TIMER_TICK_INTERVAL", "soon"},
		{"TIMER_TICK_INTERVAL", "0s"},
		{"CHAT_RETRY_DELAY", "-1s"},
		{"CHAT_RECOVERY_DELAY", "later"},
		{"CHAT_MAX_ATTEMPTS", "0"},
		{"DEDUP_CAPACITY", "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bot.yaml")
	yml := `channel: filechannel
allowed_users: [dave, erin]
allow_mods_and_broadcaster: false
tick_interval: 2s
max_minutes: 60
http_addr: ":7000"
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "filechannel" {
		t.Errorf("TwitchChannel = %q", cfg.TwitchChannel)
	}
	if want := []string{"dave", "erin"}; !reflect.DeepEqual(cfg.AllowedUsers, want) {
		t.Errorf("AllowedUsers = %v", cfg.AllowedUsers)
	}
	if cfg.AllowModsAndBroadcaster {
		t.Error("file should disable mods and broadcaster")
	}
	if cfg.TickInterval != 2*time.Second || cfg.MaxMinutes != 60 {
		t.Errorf("tick=%v max=%d", cfg.TickInterval, cfg.MaxMinutes)
	}
	// env wins over the file
	if cfg.HTTPAddr != ":7100" {
		t.Errorf("HTTPAddr = %q, want :7100", cfg.HTTPAddr)
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("allowed_users: {"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"complete", Config{TwitchChannel: "chan", TwitchBotUsername: "bot", TwitchOAuthToken: "oauth:x"}, false},
		{"token from db", Config{TwitchChannel: "chan", TwitchBotUsername: "bot", DBDsn: "sqlite::memory:"}, false},
		{"no channel", Config{TwitchBotUsername: "bot", TwitchOAuthToken: "oauth:x"}, true},
		{"no user", Config{TwitchChannel: "chan", TwitchOAuthToken: "oauth:x"}, true},
		{"no token", Config{TwitchChannel: "chan", TwitchBotUsername: "bot"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	}
}
