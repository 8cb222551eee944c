package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// ErrNoUserToken is wrapped by the AuthError returned when no broadcaster
// token has been configured or authorized yet.
var ErrNoUserToken = errors.New("no broadcaster user token configured")

// OAuthConfig builds the authorization-code configuration for the broadcaster
// token used by elevated (channel points) reads. scopes may be comma or space
// separated.
func OAuthConfig(clientID, clientSecret, redirectURI, scopes string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     twitch.Endpoint,
		Scopes:       strings.Fields(strings.ReplaceAll(scopes, ",", " ")),
	}
}

// UserTokenSource supplies a broadcaster user access token, refreshing it with
// the stored refresh token when it expires. It is held in memory only.
type UserTokenSource struct {
	cfg *oauth2.Config
	ctx context.Context

	mu  sync.RWMutex
	src oauth2.TokenSource
}

// NewUserTokenSource returns a source for cfg. ctx scopes the HTTP calls made
// by background refreshes. refreshToken may be empty; the source then fails
// with ErrNoUserToken until SetToken is called.
func NewUserTokenSource(ctx context.Context, cfg *oauth2.Config, refreshToken string) *UserTokenSource {
	us := &UserTokenSource{cfg: cfg, ctx: ctx}
	if refreshToken != "" {
		us.src = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	}
	return us
}

// AuthCodeURL returns the Twitch consent URL carrying state.
func (us *UserTokenSource) AuthCodeURL(state string) string {
	return us.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and installs it.
func (us *UserTokenSource) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := us.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Reason: "authorization code exchange failed", Err: err}
	}
	us.SetToken(tok)
	return tok, nil
}

// SetToken replaces the current token; refreshes continue from its refresh token.
func (us *UserTokenSource) SetToken(tok *oauth2.Token) {
	us.mu.Lock()
	us.src = us.cfg.TokenSource(us.ctx, tok)
	us.mu.Unlock()
	slog.Info("twitch user token installed", slog.Time("expiry", tok.Expiry), slog.Bool("refreshable", tok.RefreshToken != ""))
}

// Configured reports whether a token (or refresh token) is available.
func (us *UserTokenSource) Configured() bool {
	us.mu.RLock()
	defer us.mu.RUnlock()
	return us.src != nil
}

// Get returns a valid user access token.
func (us *UserTokenSource) Get(ctx context.Context) (string, error) {
	us.mu.RLock()
	src := us.src
	us.mu.RUnlock()
	if src == nil {
		return "", &AuthError{Reason: "user token unavailable", Err: ErrNoUserToken}
	}
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", &AuthError{Reason: "user token refresh rejected", StatusCode: re.Response.StatusCode, Err: err}
		}
		return "", &AuthError{Reason: "user token refresh failed", Err: err}
	}
	return tok.AccessToken, nil
}
