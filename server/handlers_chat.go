package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/onnwee/streamdash/backend/chat"
)

const (
	sseBuffer    = 64
	sseHeartbeat = 15 * time.Second
)

type chatState struct {
	State       string `json:"state"`
	Channel     string `json:"channel,omitempty"`
	Subscribers int    `json:"subscribers"`
	Buffered    int    `json:"buffered"`
	WindowSize  int    `json:"windowSize"`
}

func (h *Handlers) chatState() chatState {
	s := chatState{State: chat.Disconnected.String()}
	if h.Chat != nil {
		s.State = h.Chat.State().String()
		s.Channel = h.Chat.Channel()
		s.Subscribers = h.Chat.SubscriberCount()
	}
	if h.Window != nil {
		s.Buffered = h.Window.Len()
		s.WindowSize = h.Window.Size()
	}
	return s
}

func (h *Handlers) chatReady(w http.ResponseWriter) bool {
	if h.Chat == nil || h.Window == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "chat_unavailable"})
		return false
	}
	return true
}

// HandleChatMessages returns the buffered window, newest first. limit caps
// the number returned.
func (h *Handlers) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if !h.chatReady(w) {
		return
	}
	msgs := h.Window.Messages()
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":  h.Chat.Channel(),
		"state":    h.Chat.State().String(),
		"messages": msgs,
	})
}

// HandleChatStream pushes live messages as Server-Sent Events. With
// backfill=1 the current window is replayed first, oldest first. The stream
// ends with a "reset" event when the chat connection is replaced, so
// EventSource clients reconnect onto the new channel.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if !h.chatReady(w) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	log := reqLogger(r)

	msgs := make(chan chat.ChatMessage, sseBuffer)
	sub := h.Chat.Subscribe(func(m chat.ChatMessage) {
		select {
		case msgs <- m:
		default:
			// Slow reader; the window still has it.
		}
	})
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if v, _ := strconv.ParseBool(r.URL.Query().Get("backfill")); v {
		backlog := h.Window.Messages()
		slices.Reverse(backlog)
		for _, m := range backlog {
			if err := writeEvent(w, "message", m.ID, m); err != nil {
				return
			}
		}
	}
	if err := writeEvent(w, "ready", "", h.chatState()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case <-sub.Done():
			_ = writeEvent(w, "reset", "", h.chatState())
			flusher.Flush()
			return
		case m := <-msgs:
			if err := writeEvent(w, "message", m.ID, m); err != nil {
				log.Debug("sse write failed", slog.Any("err", err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// HandleChatConnect (re)connects chat to ?channel=, falling back to
// TWITCH_CHANNEL, and attaches the message window.
func (h *Handlers) HandleChatConnect(w http.ResponseWriter, r *http.Request) {
	if !h.chatReady(w) {
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = h.Config.TwitchChannel
	}
	if err := chat.Follow(r.Context(), h.Chat, h.Window, channel); err != nil {
		status, code := http.StatusBadGateway, "chat_connect_failed"
		if errors.Is(err, chat.ErrInvalidChannel) {
			status, code = http.StatusBadRequest, "invalid_argument"
		}
		reqLogger(r).Warn("chat connect failed", slog.String("channel", channel), slog.Any("err", err))
		writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.chatState())
}

func (h *Handlers) HandleChatDisconnect(w http.ResponseWriter, r *http.Request) {
	if !h.chatReady(w) {
		return
	}
	h.Chat.Disconnect()
	writeJSON(w, http.StatusOK, h.chatState())
}
