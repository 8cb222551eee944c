package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"
)

// DefaultColor is used when a chatter has never picked a name color.
const DefaultColor = "#FFFFFF"

// User is the sender of a chat message.
type User struct {
	ID           string            `json:"id"`
	Login        string            `json:"login"`
	DisplayName  string            `json:"displayName"`
	Color        string            `json:"color"`
	Badges       map[string]string `json:"badges"`
	IsMod        bool              `json:"isMod"`
	IsSubscriber bool              `json:"isSubscriber"`
	IsVIP        bool              `json:"isVip"`
}

// EmotePosition is an inclusive character range inside the message text.
type EmotePosition struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Emote is one emote used in a message with every place it occurs.
type Emote struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Positions []EmotePosition `json:"positions"`
}

// ChatMessage is a parsed PRIVMSG. Emotes is nil when the wire message carried
// no emotes tag at all.
type ChatMessage struct {
	ID        string  `json:"id"`
	User      User    `json:"user"`
	Text      string  `json:"text"`
	Timestamp int64   `json:"timestamp"` // unix millis
	Channel   string  `json:"channel"`   // lower-cased, without the leading #
	Emotes    []Emote `json:"emotes,omitempty"`
}

// Time returns Timestamp as a time.Time.
func (m ChatMessage) Time() time.Time { return time.UnixMilli(m.Timestamp) }

// Clone returns a deep copy; mutating it never affects m.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.User.Badges != nil {
		out.User.Badges = make(map[string]string, len(m.User.Badges))
		for k, v := range m.User.Badges {
			out.User.Badges[k] = v
		}
	}
	if m.Emotes != nil {
		out.Emotes = make([]Emote, len(m.Emotes))
		for i, e := range m.Emotes {
			out.Emotes[i] = e
			if e.Positions != nil {
				out.Emotes[i].Positions = append([]EmotePosition(nil), e.Positions...)
			}
		}
	}
	return out
}

// NormalizeChannel lower-cases name and makes sure it has exactly one
// leading '#'.
func NormalizeChannel(name string) string {
	return "#" + strings.ToLower(strings.TrimLeft(strings.TrimSpace(name), "#"))
}

// parseMessage builds a ChatMessage from a PRIVMSG. Tags take precedence;
// the fields go-twitch-irc already decoded are used when a tag is missing.
func parseMessage(msg twitch.PrivateMessage, received time.Time) ChatMessage {
	tags := msg.Tags
	login := msg.User.Name
	if login == "" {
		login = tags["login"]
	}
	m := ChatMessage{
		ID:        firstNonEmpty(tags["id"], msg.ID),
		Text:      msg.Message,
		Channel:   strings.TrimPrefix(NormalizeChannel(msg.Channel), "#"),
		Timestamp: received.UnixMilli(),
		User: User{
			ID:           firstNonEmpty(tags["user-id"], msg.User.ID),
			Login:        login,
			DisplayName:  firstNonEmpty(tags["display-name"], msg.User.DisplayName, login),
			Color:        firstNonEmpty(tags["color"], msg.User.Color, DefaultColor),
			IsMod:        tags["mod"] == "1",
			IsSubscriber: tags["subscriber"] == "1",
			IsVIP:        tags["vip"] == "1",
		},
	}
	if m.ID == "" {
		m.ID = fmt.Sprintf("%d-%s", received.UnixMilli(), uuid.NewString())
	}
	if ts, err := strconv.ParseInt(tags["tmi-sent-ts"], 10, 64); err == nil && ts > 0 {
		m.Timestamp = ts
	}

	if raw, ok := tags["badges"]; ok {
		m.User.Badges = parseBadges(raw)
	} else {
		m.User.Badges = make(map[string]string, len(msg.User.Badges))
		for name, version := range msg.User.Badges {
			m.User.Badges[name] = strconv.Itoa(version)
		}
	}

	if raw, ok := tags["emotes"]; ok {
		m.Emotes = parseEmotes(raw, msg.Message)
	} else if tags == nil && msg.Emotes != nil {
		m.Emotes = convertEmotes(msg.Emotes)
	}
	return m
}

// parseBadges decodes "broadcaster/1,subscriber/12".
func parseBadges(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		if part == "" {
			continue
		}
		name, version, _ := strings.Cut(part, "/")
		out[name] = version
	}
	return out
}

// parseEmotes decodes "25:0-4,12-16/1902:6-10". Positions index runes of text.
func parseEmotes(raw, text string) []Emote {
	out := []Emote{}
	if raw == "" {
		return out
	}
	runes := []rune(text)
	for _, group := range strings.Split(raw, "/") {
		id, ranges, ok := strings.Cut(group, ":")
		if !ok || id == "" {
			continue
		}
		e := Emote{ID: id}
		for _, r := range strings.Split(ranges, ",") {
			a, b, ok := strings.Cut(r, "-")
			if !ok {
				continue
			}
			start, err1 := strconv.Atoi(a)
			end, err2 := strconv.Atoi(b)
			if err1 != nil || err2 != nil || start < 0 || end < start {
				continue
			}
			e.Positions = append(e.Positions, EmotePosition{Start: start, End: end})
			if e.Name == "" && end < len(runes) {
				e.Name = string(runes[start : end+1])
			}
		}
		if len(e.Positions) > 0 {
			out = append(out, e)
		}
	}
	return out
}

func convertEmotes(in []*twitch.Emote) []Emote {
	out := make([]Emote, 0, len(in))
	for _, e := range in {
		if e == nil {
			continue
		}
		ce := Emote{ID: e.ID, Name: e.Name}
		for _, p := range e.Positions {
			ce.Positions = append(ce.Positions, EmotePosition{Start: p.Start, End: p.End})
		}
		out = append(out, ce)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
