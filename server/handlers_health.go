package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/streamdash/backend/chat"
)

// HandleHealthz is a liveness probe; it never calls out.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once an app token can be obtained and, when a
// default channel is configured, chat is joined.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"credentials", func(ctx context.Context) error {
			if h.AppToken == nil {
				return fmt.Errorf("twitch client credentials not configured")
			}
			_, err := h.AppToken.Get(ctx)
			return err
		}},
		{"chat", func(context.Context) error {
			if h.Chat == nil || h.Config.TwitchChannel == "" {
				return nil
			}
			if st := h.Chat.State(); st != chat.Connected {
				return fmt.Errorf("chat %s", st)
			}
			return nil
		}},
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
