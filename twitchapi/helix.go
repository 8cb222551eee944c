// Package twitchapi talks to the Twitch Helix API: app and broadcaster token
// management plus typed, cursor-paginated reads of dashboard resources.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/onnwee/streamdash/backend/telemetry"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

const (
	defaultPageSize = 20
	maxErrorBody    = 4096
)

// Resource names a Helix resource kind.
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceStreams       Resource = "streams"
	ResourceGames         Resource = "games"
	ResourceChannels      Resource = "channels"
	ResourceVideos        Resource = "videos"
	ResourceClips         Resource = "clips"
	ResourceEmotes        Resource = "emotes"
	ResourceGlobalEmotes  Resource = "global_emotes"
	ResourceFollowers     Resource = "followers"
	ResourceBadges        Resource = "badges"
	ResourceGlobalBadges  Resource = "global_badges"
	ResourceCustomRewards Resource = "custom_rewards"
	ResourceRedemptions   Resource = "redemptions"
)

type resourceInfo struct {
	path     string
	elevated bool // needs a broadcaster user token with a channel:read scope
	maxFirst int  // 0 when the resource is not paginated
}

var resourceTable = map[Resource]resourceInfo{
	ResourceUsers:         {path: "/users"},
	ResourceStreams:       {path: "/streams"},
	ResourceGames:         {path: "/games"},
	ResourceChannels:      {path: "/channels"},
	ResourceVideos:        {path: "/videos", maxFirst: 100},
	ResourceClips:         {path: "/clips", maxFirst: 100},
	ResourceEmotes:        {path: "/chat/emotes"},
	ResourceGlobalEmotes:  {path: "/chat/emotes/global"},
	ResourceFollowers:     {path: "/channels/followers", maxFirst: 100},
	ResourceBadges:        {path: "/chat/badges"},
	ResourceGlobalBadges:  {path: "/chat/badges/global"},
	ResourceCustomRewards: {path: "/channel_points/custom_rewards", elevated: true},
	ResourceRedemptions:   {path: "/channel_points/custom_rewards/redemptions", elevated: true, maxFirst: 50},
}

// Elevated reports whether r requires a broadcaster user token.
func (r Resource) Elevated() bool { return resourceTable[r].elevated }

// Page is one page of a cursor-paginated listing. An empty Cursor is the only
// end-of-data signal; pass it back verbatim as PageRequest.After.
type Page[T any] struct {
	Items  []T    `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

// HasMore reports whether another page can be requested.
func (p Page[T]) HasMore() bool { return p.Cursor != "" }

// FollowerPage is a page of followers plus the server-reported total.
type FollowerPage struct {
	Page[Follower]
	Total int `json:"total"`
}

// PageRequest selects a page. First defaults to 20 and is clamped to the
// resource maximum. After is sent only when non-empty.
type PageRequest struct {
	First int
	After string
}

func (p PageRequest) apply(q url.Values, maxFirst int) {
	first := p.First
	if first <= 0 {
		first = defaultPageSize
	}
	if maxFirst > 0 && first > maxFirst {
		first = maxFirst
	}
	q.Set("first", strconv.Itoa(first))
	if p.After != "" {
		q.Set("after", p.After)
	}
}

// HelixClient performs typed Helix reads. It never retries and never follows
// cursors on its own.
type HelixClient struct {
	BaseURL        string // defaults to DefaultBaseURL
	ClientID       string
	AppTokenSource Tokener
	// UserTokenSource, when set, supplies the token for elevated resources.
	// If it has no token yet the app token is sent and Helix decides.
	UserTokenSource Tokener
	HTTPClient      *http.Client
	// Limiter, when set, is waited on before every request.
	Limiter *rate.Limiter
}

// NewHelixClient returns a client authenticating with the app token source.
func NewHelixClient(clientID string, app Tokener, hc *http.Client) *HelixClient {
	return &HelixClient{ClientID: clientID, AppTokenSource: app, HTTPClient: hc}
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (hc *HelixClient) token(ctx context.Context, res Resource) (string, error) {
	if res.Elevated() && hc.UserTokenSource != nil {
		tok, err := hc.UserTokenSource.Get(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoUserToken) {
			return "", err
		}
	}
	if hc.AppTokenSource == nil {
		return "", &AuthError{Reason: "no app token source configured"}
	}
	return hc.AppTokenSource.Get(ctx)
}

type envelope[T any] struct {
	Data       []T `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
	Total int `json:"total"`
}

// get is the single request path shared by every accessor.
func get[T any](ctx context.Context, hc *HelixClient, res Resource, q url.Values) (env envelope[T], err error) {
	info, ok := resourceTable[res]
	if !ok {
		return env, invalidArg("unknown resource %q", res)
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix."+string(res),
		attribute.String("helix.resource", string(res)))
	defer span.End()
	started := time.Now()
	status := "error"
	defer func() {
		telemetry.ObserveHelixRequest(string(res), status, time.Since(started))
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanSuccess(span)
		}
	}()

	tok, err := hc.token(ctx, res)
	if err != nil {
		status = "auth_error"
		return env, err
	}
	if hc.Limiter != nil {
		if err := hc.Limiter.Wait(ctx); err != nil {
			return env, &RequestError{Resource: res, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}
	u := hc.baseURL() + info.path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return env, &RequestError{Resource: res, Err: err}
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return env, &RequestError{Resource: res, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		re := &RequestError{
			Resource:   res,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(b)),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
		if re.RetryAfter == "" {
			re.RetryAfter = resp.Header.Get("Ratelimit-Reset")
		}
		if info.elevated && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			re.RequiresUserToken = true
		}
		return env, re
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return env, &RequestError{Resource: res, StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Data == nil {
		env.Data = []T{}
	}
	return env, nil
}

func single[T any](ctx context.Context, hc *HelixClient, res Resource, q url.Values) (*T, error) {
	env, err := get[T](ctx, hc, res, q)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	v := env.Data[0]
	return &v, nil
}

func page[T any](ctx context.Context, hc *HelixClient, res Resource, q url.Values, pr PageRequest) (Page[T], int, error) {
	pr.apply(q, resourceTable[res].maxFirst)
	env, err := get[T](ctx, hc, res, q)
	if err != nil {
		return Page[T]{}, 0, err
	}
	return Page[T]{Items: env.Data, Cursor: env.Pagination.Cursor}, env.Total, nil
}
