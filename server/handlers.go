package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/streamdash/backend/chat"
	"github.com/onnwee/streamdash/backend/config"
	"github.com/onnwee/streamdash/backend/monitor"
	"github.com/onnwee/streamdash/backend/twitchapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
	oauthStateTTL  = 10 * time.Minute
)

// Deps are the long-lived components the handlers read from. Monitor,
// UserToken and Chat/Window may be nil when not configured.
type Deps struct {
	Config    *config.Config
	Helix     *twitchapi.HelixClient
	AppToken  *twitchapi.TokenSource
	UserToken *twitchapi.UserTokenSource
	Chat      *chat.Client
	Window    *chat.Window
	Monitor   *monitor.StreamMonitor
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Deps
	ctx        context.Context
	stateStore map[string]time.Time
	stateMu    sync.Mutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	return &Handlers{
		Deps:       deps,
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates(now time.Time) {
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records state until expiry. It reports false when the store
// is full, in which case the flow must not proceed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if len(h.stateStore)%100 == 0 || len(h.stateStore) >= maxOAuthStates {
		h.cleanExpiredStates(time.Now())
	}
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState removes state and reports whether it was valid.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps client errors onto HTTP responses:
// auth problems are 503, upstream failures 502 (429 passes through), bad
// input 400.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := reqLogger(r)
	var authErr *twitchapi.AuthError
	switch {
	case errors.As(err, &authErr):
		log.Error("twitch auth failed", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "auth_misconfigured", Message: authErr.Reason})
	case errors.Is(err, twitchapi.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_argument", Message: err.Error()})
	case errors.Is(err, context.Canceled):
		// client went away
		log.Debug("request canceled", slog.Any("err", err))
	default:
		if reqErr, ok := twitchapi.AsRequestError(err); ok {
			if reqErr.StatusCode == http.StatusTooManyRequests {
				if secs := retryAfterSeconds(reqErr.RetryAfter, time.Now()); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: err.Error()})
				return
			}
			log.Warn("helix request failed", slog.String("resource", string(reqErr.Resource)), slog.Int("status", reqErr.StatusCode), slog.Any("err", err))
			body := errorBody{Error: "upstream_error", Message: err.Error()}
			if reqErr.RequiresUserToken {
				body.Error = "user_token_required"
			}
			writeJSON(w, http.StatusBadGateway, body)
			return
		}
		log.Error("request failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// retryAfterSeconds turns a Helix Ratelimit-Reset (unix seconds) or a
// Retry-After delay into a delay from now.
func retryAfterSeconds(raw string, now time.Time) int {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	if n > 1_000_000_000 {
		return max(1, int(n-now.Unix()))
	}
	return int(n)
}

// respond writes v, treating a nil pointer as not found.
func respond[T any](w http.ResponseWriter, r *http.Request, v *T, err error) {
	switch {
	case err != nil:
		writeError(w, r, err)
	case v == nil:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

// respondList writes a list result; lists are never 404.
func respondList(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
