package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func tokenServer(t *testing.T, calls *int32, token string, expiresIn int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestTokenSource(host string) *TokenSource {
	return &TokenSource{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		HTTPClient: &http.Client{
			Transport: &tokenTransport{host: host},
		},
	}
}

func TestTokenSource_GetCached(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls, "test-token-123", 3600)
	ts := newTestTokenSource(server.URL)
	ctx := context.Background()

	token1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token1 != "test-token-123" {
		t.Errorf("Get() = %s, want test-token-123", token1)
	}

	token2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token2 != token1 {
		t.Errorf("cached token = %s, want %s", token2, token1)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 token exchange, got %d", n)
	}
}

func TestTokenSource_ConcurrentCallersShareOneExchange(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "shared-token",
			"expires_in":   3600,
		})
	}))
	defer server.Close()
	ts := newTestTokenSource(server.URL)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ts.Get(context.Background())
		}(i)
	}
	// Give every caller time to reach the in-flight exchange.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != "shared-token" {
			t.Errorf("caller %d got %q", i, results[i])
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected exactly 1 token exchange, got %d", n)
	}
}

func TestTokenSource_RefreshInsideSkew(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		token := "test-token-1"
		if n > 1 {
			token = "test-token-2"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestTokenSource(server.URL)
	ts.now = func() time.Time { return clock }
	ctx := context.Background()

	if tok, err := ts.Get(ctx); err != nil || tok != "test-token-1" {
		t.Fatalf("Get() = %q, %v", tok, err)
	}

	// 54 minutes in: still outside the 5 minute skew.
	clock = clock.Add(54 * time.Minute)
	if tok, _ := ts.Get(ctx); tok != "test-token-1" {
		t.Errorf("Get() at 54m = %q, want cached test-token-1", tok)
	}

	// 56 minutes in: within 5 minutes of expiry, must exchange again.
	clock = clock.Add(2 * time.Minute)
	if tok, _ := ts.Get(ctx); tok != "test-token-2" {
		t.Errorf("Get() at 56m = %q, want refreshed test-token-2", tok)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 exchanges, got %d", n)
	}
}

func TestTokenSource_ShortLivedTokenNotCached(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls, "short", 60) // inside the default 5m skew
	ts := newTestTokenSource(server.URL)

	for i := 0; i < 2; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if tok != "short" {
			t.Errorf("Get() = %q, want short", tok)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 exchanges for uncacheable token, got %d", n)
	}
}

func TestTokenSource_Errors(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		clientID    string
		errContains string
		wantStatus  int
	}{
		{
			name:        "missing credentials",
			errContains: "missing client id/secret",
		},
		{
			name:     "server rejects credentials",
			clientID: "bad-client",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid_client"}`))
			},
			errContains: "invalid_client",
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name:     "empty access token",
			clientID: "test-client",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"access_token":"","expires_in":3600}`))
			},
			errContains: "empty access_token",
		},
		{
			name:     "non-positive expires_in",
			clientID: "test-client",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"access_token":"tok","expires_in":0}`))
			},
			errContains: "invalid expires_in",
		},
		{
			name:     "malformed body",
			clientID: "test-client",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			errContains: "decode token response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := &TokenSource{}
			if tt.handler != nil {
				server := httptest.NewServer(tt.handler)
				defer server.Close()
				ts = newTestTokenSource(server.URL)
				ts.ClientID = tt.clientID
			}

			_, err := ts.Get(context.Background())
			if err == nil {
				t.Fatal("Get() error = nil, want error")
			}
			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("Get() error = %T %v, want *AuthError", err, err)
			}
			if ae.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", ae.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Get() error = %v, want error containing %q", err, tt.errContains)
			}
			if ts.ExpiresIn() > 0 {
				t.Error("failed exchange must not populate the cache")
			}
		})
	}
}

func TestTokenSource_RefreshAndInvalidate(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls, "fresh", 3600)
	ts := newTestTokenSource(server.URL)
	ts.SetToken("seeded", time.Now().Add(time.Hour))

	if tok, _ := ts.Get(context.Background()); tok != "seeded" {
		t.Fatalf("Get() = %q, want seeded", tok)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("seeded token should not trigger an exchange")
	}

	got, err := ts.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got.Value != "fresh" {
		t.Errorf("Refresh() = %q, want fresh", got.Value)
	}

	ts.Invalidate()
	if ts.ExpiresIn() != 0 {
		t.Errorf("ExpiresIn() after Invalidate = %v, want 0", ts.ExpiresIn())
	}
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get() after Invalidate error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 exchanges, got %d", n)
	}
}

func TestTokenSource_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "late", "expires_in": 3600})
	}))
	defer server.Close()
	defer close(release)
	ts := newTestTokenSource(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := ts.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get() error = %v, want deadline exceeded", err)
	}
}

func TestAccessToken_ValidAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		tok  AccessToken
		want bool
	}{
		{"well before expiry", AccessToken{Value: "a", ExpiresAt: now.Add(time.Hour)}, true},
		{"exactly at skew boundary", AccessToken{Value: "a", ExpiresAt: now.Add(5 * time.Minute)}, false},
		{"inside skew", AccessToken{Value: "a", ExpiresAt: now.Add(4 * time.Minute)}, false},
		{"empty value", AccessToken{ExpiresAt: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.ValidAt(now, DefaultExpirySkew); got != tt.want {
				t.Errorf("ValidAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// tokenTransport redirects every request to the test server.
type tokenTransport struct {
	host string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		req.URL.Host = strings.TrimPrefix(t.host, "http://")
	}
	return http.DefaultTransport.RoundTrip(req)
}
