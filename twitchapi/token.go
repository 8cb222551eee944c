package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/streamdash/backend/telemetry"
)

const (
	// DefaultTokenURL is the Twitch OAuth token endpoint.
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"
	// DefaultExpirySkew is how long before expiry a cached token is treated as stale.
	DefaultExpirySkew = 5 * time.Minute
)

// Tokener hands out bearer tokens for Helix requests.
type Tokener interface {
	Get(ctx context.Context) (string, error)
}

// AccessToken is an app access token and its absolute expiry.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be used at now given skew.
func (t AccessToken) ValidAt(now time.Time, skew time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-skew))
}

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// Concurrent callers that find the cache stale share a single exchange.
// NOTE: This token CANNOT be used for IRC chat or for broadcaster-scoped
// endpoints such as channel points; those need a user token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	TokenURL     string        // defaults to DefaultTokenURL
	Skew         time.Duration // defaults to DefaultExpirySkew

	now func() time.Time

	mu    sync.RWMutex
	token *AccessToken

	group singleflight.Group
}

// NewTokenSource returns a TokenSource for the given app credentials.
func NewTokenSource(clientID, clientSecret string, hc *http.Client) *TokenSource {
	return &TokenSource{ClientID: clientID, ClientSecret: clientSecret, HTTPClient: hc}
}

func (ts *TokenSource) clock() time.Time {
	if ts.now != nil {
		return ts.now()
	}
	return time.Now()
}

func (ts *TokenSource) skew() time.Duration {
	if ts.Skew > 0 {
		return ts.Skew
	}
	return DefaultExpirySkew
}

func (ts *TokenSource) http() *http.Client {
	if ts.HTTPClient != nil {
		return ts.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Get returns a valid (fresh or cached) app access token value.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	tok, err := ts.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Token returns the cached token when it is outside the skew window, and
// otherwise performs (or joins) a client-credentials exchange.
func (ts *TokenSource) Token(ctx context.Context) (AccessToken, error) {
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}
	return ts.exchangeShared(ctx, false)
}

// Refresh forces a new exchange regardless of the cached token's state.
// Callers arriving while it runs share its result.
func (ts *TokenSource) Refresh(ctx context.Context) (AccessToken, error) {
	return ts.exchangeShared(ctx, true)
}

// Invalidate drops the cached token so the next call exchanges again.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = nil
	ts.mu.Unlock()
}

// SetToken seeds the cache, e.g. with a token obtained out of band.
func (ts *TokenSource) SetToken(value string, expiresAt time.Time) {
	ts.mu.Lock()
	ts.token = &AccessToken{Value: value, ExpiresAt: expiresAt}
	ts.mu.Unlock()
}

// ExpiresIn returns how long the cached token stays usable (expiry minus skew).
// It is zero or negative when nothing usable is cached.
func (ts *TokenSource) ExpiresIn() time.Duration {
	ts.mu.RLock()
	tok := ts.token
	ts.mu.RUnlock()
	if tok == nil {
		return 0
	}
	return tok.ExpiresAt.Add(-ts.skew()).Sub(ts.clock())
}

func (ts *TokenSource) cached() (AccessToken, bool) {
	ts.mu.RLock()
	tok := ts.token
	ts.mu.RUnlock()
	if tok != nil && tok.ValidAt(ts.clock(), ts.skew()) {
		return *tok, true
	}
	return AccessToken{}, false
}

func (ts *TokenSource) exchangeShared(ctx context.Context, force bool) (AccessToken, error) {
	// The exchange outlives any single waiter so one caller giving up does not
	// fail the others; the HTTP client timeout bounds it.
	ch := ts.group.DoChan("app-token", func() (any, error) {
		if !force {
			// A flight that finished just before this one may have filled the cache.
			if tok, ok := ts.cached(); ok {
				return tok, nil
			}
		}
		return ts.exchange(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil
	}
}

func (ts *TokenSource) exchange(ctx context.Context) (tok AccessToken, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		telemetry.RecordTokenExchange(outcome)
	}()
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return AccessToken{}, &AuthError{Reason: "missing client id/secret for twitch app token"}
	}
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, &AuthError{Reason: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	started := ts.clock()
	resp, err := ts.http().Do(req)
	if err != nil {
		return AccessToken{}, &AuthError{Reason: "token request failed", Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return AccessToken{}, &AuthError{
			Reason:     "token exchange rejected",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b))),
		}
	}
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return AccessToken{}, &AuthError{Reason: "decode token response", Err: err}
	}
	if at.AccessToken == "" {
		return AccessToken{}, &AuthError{Reason: "empty access_token in twitch response"}
	}
	if at.ExpiresIn <= 0 {
		return AccessToken{}, &AuthError{Reason: fmt.Sprintf("invalid expires_in %d in twitch response", at.ExpiresIn)}
	}
	tok = AccessToken{Value: at.AccessToken, ExpiresAt: started.Add(time.Duration(at.ExpiresIn) * time.Second)}
	if !tok.ValidAt(started, ts.skew()) {
		// Usable for this round of callers only.
		slog.Warn("twitch app token lifetime inside expiry skew; not caching",
			slog.Int("expires_in", at.ExpiresIn), slog.Duration("skew", ts.skew()))
		return tok, nil
	}
	ts.mu.Lock()
	ts.token = &tok
	ts.mu.Unlock()
	slog.Debug("twitch app token refreshed", slog.Time("expires_at", tok.ExpiresAt), slog.String("component", "twitch_token"))
	return tok, nil
}
