package server

import (
	"net/http"
)

// HandleConfig returns the non-secret runtime configuration the dashboard
// needs (default channel, polling cadence, window size).
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":               cfg.TwitchChannel,
		"refresh_interval_sec":  int(cfg.RefreshInterval.Seconds()),
		"max_chat_messages":     cfg.MaxChatMessages,
		"token_expiry_skew_sec": int(cfg.TokenExpirySkew.Seconds()),
		"helix_rate_limit":      cfg.HelixRateLimit,
		"helix_configured":      h.Helix != nil,
		"chat_authenticated":    cfg.TwitchBotUsername != "" && cfg.TwitchOAuthToken != "",
		"user_oauth_enabled":    h.UserToken != nil,
		"user_token_configured": h.UserToken != nil && h.UserToken.Configured(),
	})
}

// HandleStatus summarizes live status, chat and token state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"chat": h.chatState()}
	if h.Monitor != nil {
		resp["stream"] = h.Monitor.Status()
	}
	if h.AppToken != nil {
		resp["app_token_expires_in_sec"] = int(h.AppToken.ExpiresIn().Seconds())
	}
	resp["user_token_configured"] = h.UserToken != nil && h.UserToken.Configured()
	writeJSON(w, http.StatusOK, resp)
}
