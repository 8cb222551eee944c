package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_CHANNEL", "TWITCH_BOT_USERNAME",
		"TWITCH_OAUTH_TOKEN", "TWITCH_USER_REFRESH_TOKEN", "TWITCH_REDIRECT_URI", "TWITCH_SCOPES",
		"AUTO_REFRESH_INTERVAL", "MAX_CHAT_MESSAGES", "TOKEN_EXPIRY_SKEW", "HELIX_RATE_LIMIT",
		"HELIX_RATE_BURST", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT",
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
	if cfg.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %v, want %v", cfg.RefreshInterval, DefaultRefreshInterval)
	}
	if cfg.MaxChatMessages != DefaultMaxChatMessages {
		t.Errorf("MaxChatMessages = %d, want %d", cfg.MaxChatMessages, DefaultMaxChatMessages)
	}
	if cfg.TokenExpirySkew != DefaultTokenExpirySkew {
		t.Errorf("TokenExpirySkew = %v, want %v", cfg.TokenExpirySkew, DefaultTokenExpirySkew)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.TwitchScopes != DefaultTwitchScopes {
		t.Errorf("TwitchScopes = %q", cfg.TwitchScopes)
	}
	if cfg.HelixRateLimit != 0 || cfg.HelixRateBurst != 1 {
		t.Errorf("rate limit = %v/%d, want disabled", cfg.HelixRateLimit, cfg.HelixRateBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNEL", "#SomeStreamer")
	t.Setenv("AUTO_REFRESH_INTERVAL", "45")
	t.Setenv("TOKEN_EXPIRY_SKEW", "2m")
	t.Setenv("MAX_CHAT_MESSAGES", "250")
	t.Setenv("HELIX_RATE_LIMIT", "12.5")
	t.Setenv("HELIX_RATE_BURST", "4")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "somestreamer" {
		t.Errorf("TwitchChannel = %q, want somestreamer", cfg.TwitchChannel)
	}
	if cfg.RefreshInterval != 45*time.Second {
		t.Errorf("RefreshInterval = %v, want 45s", cfg.RefreshInterval)
	}
	if cfg.TokenExpirySkew != 2*time.Minute {
		t.Errorf("TokenExpirySkew = %v, want 2m", cfg.TokenExpirySkew)
	}
	if cfg.MaxChatMessages != 250 {
		t.Errorf("MaxChatMessages = %d, want 250", cfg.MaxChatMessages)
	}
	if cfg.HelixRateLimit != 12.5 || cfg.HelixRateBurst != 4 {
		t.Errorf("rate limit = %v/%d", cfg.HelixRateLimit, cfg.HelixRateBurst)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"AUTO_REFRESH_INTERVAL", "soon"},
		{"AUTO_REFRESH_INTERVAL", "-5"},
		{"TOKEN_EXPIRY_SKEW", "0s"},
		{"MAX_CHAT_MESSAGES", "lots"},
		{"MAX_CHAT_MESSAGES", "0"},
		{"HELIX_RATE_LIMIT", "-1"},
		{"HELIX_RATE_BURST", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name %s", err, tt.key)
			}
		})
	}
}

func TestValidateHelixReady(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()
	if err := cfg.ValidateHelixReady(); err == nil {
		t.Error("expected error without client credentials")
	}
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ = Load()
	if err := cfg.ValidateHelixReady(); err != nil {
		t.Errorf("expected valid helix config, got %v", err)
	}
	if cfg.UserOAuthEnabled() {
		t.Error("UserOAuthEnabled() = true without redirect uri")
	}
}

func TestValidateChatReady(t *testing.T) {
	tests := []struct {
		name     string
		channel  string
		username string
		token    string
		wantErr  bool
	}{
		{"anonymous", "chan", "", "", false},
		{"authenticated", "chan", "bot", "oauth:token", false},
		{"missing channel", "", "bot", "oauth:token", true},
		{"username without token", "chan", "bot", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("TWITCH_CHANNEL", tt.channel)
			t.Setenv("TWITCH_BOT_USERNAME", tt.username)
			t.Setenv("TWITCH_OAUTH_TOKEN", tt.token)
			cfg, _ := Load()
			if err := cfg.ValidateChatReady(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateChatReady() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIntOr(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want int
	}{
		{"unset", "", 7},
		{"valid", "42", 42},
		{"padded", " 3 ", 3},
		{"not a number", "lots", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STREAMDASH_TEST_INT", tt.val)
			if got := IntOr("STREAMDASH_TEST_INT", 7); got != tt.want {
				t.Errorf("IntOr() = %d, want %d", got, tt.want)
			}
		})
	}
}
