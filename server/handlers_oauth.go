package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"
)

// HandleTwitchOAuthStart redirects the broadcaster to the Twitch consent page.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.UserToken == nil {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, h.UserToken.AuthCodeURL(st), http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the code and installs the user token
// for elevated reads. The token is kept in memory only.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.UserToken == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: e, Message: q.Get("error_description")})
		return
	}
	code, st := q.Get("code"), q.Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	tok, err := h.UserToken.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqLogger(r).Info("twitch broadcaster authorized", slog.Time("expiry", tok.Expiry))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"expiry":                tok.Expiry,
		"refresh_token_present": tok.RefreshToken != "",
	})
}
