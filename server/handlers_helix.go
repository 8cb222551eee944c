package server

import (
	"net/http"
	"strconv"

	"github.com/onnwee/streamdash/backend/twitchapi"
)

// helix returns the client or answers 503 when credentials were never set.
func (h *Handlers) helix(w http.ResponseWriter) (*twitchapi.HelixClient, bool) {
	if h.Helix == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "auth_misconfigured", Message: "TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET not set"})
		return nil, false
	}
	return h.Helix, true
}

func pageRequest(r *http.Request) twitchapi.PageRequest {
	return twitchapi.PageRequest{
		First: queryInt(r, "first", 0),
		After: r.URL.Query().Get("after"),
	}
}

func (h *Handlers) HandleUser(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	u, err := hc.GetUser(r.Context(), r.PathValue("login"))
	respond(w, r, u, err)
}

func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	s, err := hc.GetStream(r.Context(), r.PathValue("login"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Offline is a normal answer here, not a 404.
	writeJSON(w, http.StatusOK, map[string]any{"live": s != nil, "stream": s})
}

func (h *Handlers) HandleGame(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	g, err := hc.GetGame(r.Context(), r.PathValue("id"))
	respond(w, r, g, err)
}

func (h *Handlers) HandleChannel(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	c, err := hc.GetChannel(r.Context(), r.PathValue("id"))
	respond(w, r, c, err)
}

func (h *Handlers) HandleVideos(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	p, err := hc.ListVideos(r.Context(), r.URL.Query().Get("user_id"), pageRequest(r))
	respondList(w, r, p, err)
}

func (h *Handlers) HandleClips(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	p, err := hc.ListClips(r.Context(), r.URL.Query().Get("broadcaster_id"), pageRequest(r))
	respondList(w, r, p, err)
}

// HandleEmotes lists channel emotes, or global emotes without broadcaster_id.
func (h *Handlers) HandleEmotes(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	var (
		emotes []twitchapi.Emote
		err    error
	)
	if id := r.URL.Query().Get("broadcaster_id"); id != "" {
		emotes, err = hc.GetEmotes(r.Context(), id)
	} else {
		emotes, err = hc.GetGlobalEmotes(r.Context())
	}
	respondList(w, r, emotes, err)
}

// HandleBadges lists channel badges, or global badges without broadcaster_id.
func (h *Handlers) HandleBadges(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	var (
		badges []twitchapi.ChatBadge
		err    error
	)
	if id := r.URL.Query().Get("broadcaster_id"); id != "" {
		badges, err = hc.GetChatBadges(r.Context(), id)
	} else {
		badges, err = hc.GetGlobalChatBadges(r.Context())
	}
	respondList(w, r, badges, err)
}

func (h *Handlers) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	p, err := hc.ListFollowers(r.Context(), r.URL.Query().Get("broadcaster_id"), pageRequest(r))
	respondList(w, r, p, err)
}

func (h *Handlers) HandleRewards(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	onlyManageable, _ := strconv.ParseBool(r.URL.Query().Get("only_manageable"))
	rewards, err := hc.GetCustomRewards(r.Context(), r.URL.Query().Get("broadcaster_id"), onlyManageable)
	respondList(w, r, rewards, err)
}

func (h *Handlers) HandleRedemptions(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.helix(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := twitchapi.RedemptionFilter{
		BroadcasterID: q.Get("broadcaster_id"),
		RewardID:      q.Get("reward_id"),
		Status:        twitchapi.RedemptionStatus(q.Get("status")),
	}
	p, err := hc.ListRedemptions(r.Context(), f, pageRequest(r))
	respondList(w, r, p, err)
}
