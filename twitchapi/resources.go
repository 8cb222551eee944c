package twitchapi

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

const maxLookupIDs = 100

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalidArg("%s is required", name)
	}
	return nil
}

func repeated(name string, vals []string) (url.Values, error) {
	if len(vals) == 0 {
		return nil, invalidArg("at least one %s is required", name)
	}
	if len(vals) > maxLookupIDs {
		return nil, invalidArg("at most %d %s values per request, got %d", maxLookupIDs, name, len(vals))
	}
	q := url.Values{}
	for _, v := range vals {
		if err := required(name, v); err != nil {
			return nil, err
		}
		q.Add(name, v)
	}
	return q, nil
}

// GetUser looks a user up by login. It returns nil, nil when no such user exists.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (*User, error) {
	if err := required("login", login); err != nil {
		return nil, err
	}
	return single[User](ctx, hc, ResourceUsers, url.Values{"login": {login}})
}

// GetUserByID looks a user up by id. It returns nil, nil when no such user exists.
func (hc *HelixClient) GetUserByID(ctx context.Context, id string) (*User, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	return single[User](ctx, hc, ResourceUsers, url.Values{"id": {id}})
}

// GetUsers looks up to 100 users up by login. Unknown logins are simply absent.
func (hc *HelixClient) GetUsers(ctx context.Context, logins ...string) ([]User, error) {
	q, err := repeated("login", logins)
	if err != nil {
		return nil, err
	}
	env, err := get[User](ctx, hc, ResourceUsers, q)
	return env.Data, err
}

// GetStream returns the live stream for login, or nil when the channel is offline.
func (hc *HelixClient) GetStream(ctx context.Context, login string) (*Stream, error) {
	if err := required("user_login", login); err != nil {
		return nil, err
	}
	return single[Stream](ctx, hc, ResourceStreams, url.Values{"user_login": {login}})
}

// GetStreams returns the live streams among logins.
func (hc *HelixClient) GetStreams(ctx context.Context, logins ...string) ([]Stream, error) {
	q, err := repeated("user_login", logins)
	if err != nil {
		return nil, err
	}
	env, err := get[Stream](ctx, hc, ResourceStreams, q)
	return env.Data, err
}

// GetGame returns the category with id, or nil.
func (hc *HelixClient) GetGame(ctx context.Context, id string) (*Game, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	return single[Game](ctx, hc, ResourceGames, url.Values{"id": {id}})
}

// GetChannel returns channel information for a broadcaster, or nil.
func (hc *HelixClient) GetChannel(ctx context.Context, broadcasterID string) (*Channel, error) {
	if err := required("broadcaster_id", broadcasterID); err != nil {
		return nil, err
	}
	return single[Channel](ctx, hc, ResourceChannels, url.Values{"broadcaster_id": {broadcasterID}})
}

// ListVideos returns one page of a user's videos.
func (hc *HelixClient) ListVideos(ctx context.Context, userID string, pr PageRequest) (Page[Video], error) {
	if err := required("user_id", userID); err != nil {
		return Page[Video]{}, err
	}
	p, _, err := page[Video](ctx, hc, ResourceVideos, url.Values{"user_id": {userID}}, pr)
	return p, err
}

// ListClips returns one page of a broadcaster's clips.
func (hc *HelixClient) ListClips(ctx context.Context, broadcasterID string, pr PageRequest) (Page[Clip], error) {
	if err := required("broadcaster_id", broadcasterID); err != nil {
		return Page[Clip]{}, err
	}
	p, _, err := page[Clip](ctx, hc, ResourceClips, url.Values{"broadcaster_id": {broadcasterID}}, pr)
	return p, err
}

// ListFollowers returns one page of a broadcaster's followers and the total
// follower count.
func (hc *HelixClient) ListFollowers(ctx context.Context, broadcasterID string, pr PageRequest) (FollowerPage, error) {
	if err := required("broadcaster_id", broadcasterID); err != nil {
		return FollowerPage{}, err
	}
	p, total, err := page[Follower](ctx, hc, ResourceFollowers, url.Values{"broadcaster_id": {broadcasterID}}, pr)
	if err != nil {
		return FollowerPage{}, err
	}
	return FollowerPage{Page: p, Total: total}, nil
}

// GetEmotes returns a broadcaster's channel emotes.
func (hc *HelixClient) GetEmotes(ctx context.Context, broadcasterID string) ([]Emote, error) {
	if err := required("broadcaster_id", broadcasterID); err != nil {
		return nil, err
	}
	env, err := get[Emote](ctx, hc, ResourceEmotes, url.Values{"broadcaster_id": {broadcasterID}})
	return env.Data, err
}

// GetGlobalEmotes returns Twitch's global emotes.
func (hc *HelixClient) GetGlobalEmotes(ctx context.Context) ([]Emote, error) {
	env, err := get[Emote](ctx, hc, ResourceGlobalEmotes, nil)
	return env.Data, err
}

// GetChatBadges returns a broadcaster's custom chat badge sets.
func (hc *HelixClient) GetChatBadges(ctx context.Context, broadcasterID string) ([]ChatBadge, error) {
	if err := required("broadcaster_id", broadcasterID); err != nil {
		return nil, err
	}
	env, err := get[ChatBadge](ctx, hc, ResourceBadges, url.Values{"broadcaster_id": {broadcasterID}})
	return env.Data, err
}

// GetGlobalChatBadges returns Twitch's global chat badge sets.
func (hc *HelixClient) GetGlobalChatBadges(ctx context.Context) ([]ChatBadge, error) {
	env, err := get[ChatBadge](ctx, hc, ResourceGlobalBadges, nil)
	return env.Data, err
}

// GetCustomRewards returns a broadcaster's channel-point rewards. When
// onlyManageable is set, only rewards created by this client id are listed.
// Requires a broadcaster token with channel:read:redemptions.
func (hc *HelixClient) GetCustomRewards(ctx context.Context, broadcasterID string, onlyManageable bool) ([]CustomReward, error) {
	if err := required("broadcaster_id", broadcasterID); err != nil {
		return nil, err
	}
	q := url.Values{"broadcaster_id": {broadcasterID}}
	if onlyManageable {
		q.Set("only_manageable_rewards", strconv.FormatBool(true))
	}
	env, err := get[CustomReward](ctx, hc, ResourceCustomRewards, q)
	return env.Data, err
}

// RedemptionFilter selects redemptions of one reward.
type RedemptionFilter struct {
	BroadcasterID string
	RewardID      string
	Status        RedemptionStatus // optional
}

// ListRedemptions returns one page of redemptions for a reward.
// Requires a broadcaster token with channel:read:redemptions.
func (hc *HelixClient) ListRedemptions(ctx context.Context, f RedemptionFilter, pr PageRequest) (Page[Redemption], error) {
	if err := required("broadcaster_id", f.BroadcasterID); err != nil {
		return Page[Redemption]{}, err
	}
	if err := required("reward_id", f.RewardID); err != nil {
		return Page[Redemption]{}, err
	}
	q := url.Values{"broadcaster_id": {f.BroadcasterID}, "reward_id": {f.RewardID}}
	if f.Status != "" {
		if !f.Status.Valid() {
			return Page[Redemption]{}, invalidArg("unknown redemption status %q", f.Status)
		}
		q.Set("status", string(f.Status))
	}
	p, _, err := page[Redemption](ctx, hc, ResourceRedemptions, q, pr)
	return p, err
}
