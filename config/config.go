// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials use ValidateHelixReady.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultMaxChatMessages = 100
	DefaultTokenExpirySkew = 5 * time.Minute
	DefaultHTTPAddr        = ":8080"
	// DefaultTwitchScopes are requested for the broadcaster token used by
	// channel-point and follower reads.
	DefaultTwitchScopes = "channel:read:redemptions moderator:read:followers"
)

type Config struct {
	// Twitch app credentials (client credentials flow)
	TwitchClientID     string
	TwitchClientSecret string

	// Chat
	TwitchChannel     string // default channel for chat and stream status
	TwitchBotUsername string // empty for anonymous read-only chat
	TwitchOAuthToken  string

	// Broadcaster user token for elevated reads
	TwitchUserRefreshToken string
	TwitchRedirectURI      string
	TwitchScopes           string

	// Tunables
	RefreshInterval time.Duration
	MaxChatMessages int
	TokenExpirySkew time.Duration
	HelixRateLimit  float64 // requests per second, 0 disables
	HelixRateBurst  int

	// Process
	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateHelixReady() when Helix access is required. Malformed tunables are an error.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = strings.TrimSpace(os.Getenv("TWITCH_CLIENT_ID"))
	cfg.TwitchClientSecret = strings.TrimSpace(os.Getenv("TWITCH_CLIENT_SECRET"))
	cfg.TwitchChannel = strings.ToLower(strings.TrimLeft(strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")), "#"))
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchUserRefreshToken = os.Getenv("TWITCH_USER_REFRESH_TOKEN")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		cfg.TwitchScopes = DefaultTwitchScopes
	}

	var err error
	if cfg.RefreshInterval, err = envDuration("AUTO_REFRESH_INTERVAL", DefaultRefreshInterval); err != nil {
		return nil, err
	}
	if cfg.TokenExpirySkew, err = envDuration("TOKEN_EXPIRY_SKEW", DefaultTokenExpirySkew); err != nil {
		return nil, err
	}
	if cfg.MaxChatMessages, err = envInt("MAX_CHAT_MESSAGES", DefaultMaxChatMessages); err != nil {
		return nil, err
	}
	if cfg.MaxChatMessages <= 0 {
		return nil, fmt.Errorf("invalid MAX_CHAT_MESSAGES %d: must be positive", cfg.MaxChatMessages)
	}
	if v := os.Getenv("HELIX_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid HELIX_RATE_LIMIT %q: want a non-negative number", v)
		}
		cfg.HelixRateLimit = f
	}
	if cfg.HelixRateBurst, err = envInt("HELIX_RATE_BURST", 1); err != nil {
		return nil, err
	}
	if cfg.HelixRateBurst < 1 {
		cfg.HelixRateBurst = 1
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	cfg.LogFormat = strings.ToLower(os.Getenv("LOG_FORMAT"))

	return cfg, nil
}

// ValidateHelixReady checks the app credentials needed for any Helix call.
func (c *Config) ValidateHelixReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	return nil
}

// ValidateChatReady checks required fields for auto-connecting chat. Bot
// credentials are optional (anonymous read-only) but must come as a pair.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL")
	}
	if (c.TwitchBotUsername == "") != (c.TwitchOAuthToken == "") {
		return fmt.Errorf("twitch chat identity incomplete: set both TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN or neither")
	}
	return nil
}

// UserOAuthEnabled reports whether the broadcaster authorization-code flow
// can be offered.
func (c *Config) UserOAuthEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != "" && c.TwitchRedirectURI != ""
}

// envDuration accepts Go durations ("45s", "2m") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// IntOr returns the integer value of the environment variable key, or def
// when it is unset or not a number. For settings that should degrade rather
// than fail startup.
func IntOr(key string, def int) int {
	n, err := envInt(key, def)
	if err != nil {
		slog.Warn("ignoring invalid integer setting", slog.String("key", key), slog.Any("err", err))
		return def
	}
	return n
}
