package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestOAuthConfig(t *testing.T) {
	tests := []struct {
		name   string
		scopes string
		want   []string
	}{
		{"comma separated", "channel:read:redemptions,moderator:read:followers", []string{"channel:read:redemptions", "moderator:read:followers"}},
		{"space separated", "channel:read:redemptions  user:read:email", []string{"channel:read:redemptions", "user:read:email"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := OAuthConfig("cid", "secret", "http://localhost/cb", tt.scopes)
			if strings.Join(cfg.Scopes, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Scopes = %v, want %v", cfg.Scopes, tt.want)
			}
			if !strings.HasPrefix(cfg.Endpoint.AuthURL, "https://id.twitch.tv/") {
				t.Errorf("AuthURL = %s, want twitch endpoint", cfg.Endpoint.AuthURL)
			}
		})
	}
}

func TestUserTokenSource_AuthCodeURL(t *testing.T) {
	cfg := OAuthConfig("cid", "secret", "http://localhost:8080/auth/twitch/callback", "channel:read:redemptions")
	us := NewUserTokenSource(context.Background(), cfg, "")

	u, err := url.Parse(us.AuthCodeURL("state-xyz"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	for k, want := range map[string]string{
		"client_id":     "cid",
		"state":         "state-xyz",
		"redirect_uri":  "http://localhost:8080/auth/twitch/callback",
		"response_type": "code",
		"scope":         "channel:read:redemptions",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestUserTokenSource_NoToken(t *testing.T) {
	us := NewUserTokenSource(context.Background(), OAuthConfig("cid", "secret", "", ""), "")
	if us.Configured() {
		t.Error("Configured() = true without any token")
	}
	_, err := us.Get(context.Background())
	if !errors.Is(err, ErrNoUserToken) {
		t.Errorf("Get() error = %v, want ErrNoUserToken", err)
	}
	if !IsAuthError(err) {
		t.Errorf("Get() error = %T, want *AuthError", err)
	}
}

func userTokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testUserConfig(tokenURL string) *oauth2.Config {
	cfg := OAuthConfig("cid", "secret", "http://localhost/cb", "channel:read:redemptions")
	cfg.Endpoint.TokenURL = tokenURL
	cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	return cfg
}

func TestUserTokenSource_RefreshesFromRefreshToken(t *testing.T) {
	var gotGrant, gotRefresh string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotGrant = r.PostForm.Get("grant_type")
		gotRefresh = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"user-access","refresh_token":"r2","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer server.Close()

	us := NewUserTokenSource(context.Background(), testUserConfig(server.URL), "r1")
	if !us.Configured() {
		t.Fatal("Configured() = false with refresh token")
	}
	tok, err := us.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "user-access" {
		t.Errorf("Get() = %q, want user-access", tok)
	}
	if gotGrant != "refresh_token" || gotRefresh != "r1" {
		t.Errorf("grant_type=%q refresh_token=%q", gotGrant, gotRefresh)
	}
}

func TestUserTokenSource_RefreshRejected(t *testing.T) {
	server := userTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid refresh token"}`)
	us := NewUserTokenSource(context.Background(), testUserConfig(server.URL), "revoked")

	_, err := us.Get(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("Get() error = %v, want *AuthError", err)
	}
	if ae.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", ae.StatusCode)
	}
}

func TestUserTokenSource_ExchangeInstallsToken(t *testing.T) {
	server := userTokenServer(t, http.StatusOK, `{"access_token":"from-code","refresh_token":"rr","expires_in":14400,"token_type":"bearer"}`)
	us := NewUserTokenSource(context.Background(), testUserConfig(server.URL), "")

	tok, err := us.Exchange(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken != "from-code" || tok.Expiry.Before(time.Now().Add(time.Hour)) {
		t.Errorf("Exchange() token = %+v", tok)
	}
	got, err := us.Get(context.Background())
	if err != nil || got != "from-code" {
		t.Errorf("Get() after Exchange = %q, %v", got, err)
	}
}
