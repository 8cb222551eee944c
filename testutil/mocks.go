// Package testutil provides an in-process stand-in for the Twitch Helix and
// token endpoints.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// MockTwitchServer serves canned Helix responses keyed by URL path. Helix
// routes live under /helix, the token endpoint at /oauth2/token.
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	requests []*http.Request
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.hits[r.URL.Path]++
		m.requests = append(m.requests, r.Clone(r.Context()))
		handler, ok := m.handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to hand to a Helix client.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// TokenURL is the client-credentials endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// Handle installs fn for path, replacing any previous handler.
func (m *MockTwitchServer) Handle(path string, fn http.HandlerFunc) {
	m.mu.Lock()
	m.handlers[path] = fn
	m.mu.Unlock()
}

// Hits returns how many requests reached path.
func (m *MockTwitchServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// LastRequest returns the most recent request, or nil.
func (m *MockTwitchServer) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockData serves {"data": data, "pagination": {"cursor": cursor}} at a Helix
// resource path such as "/users".
func (m *MockTwitchServer) MockData(resource string, data any, cursor string) {
	m.Handle("/helix"+resource, func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"data": data}
		if cursor != "" {
			body["pagination"] = map[string]string{"cursor": cursor}
		}
		writeJSON(w, http.StatusOK, body)
	})
}

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.MockData("/users", []map[string]string{{"id": userID, "login": login, "display_name": login}}, "")
}

// MockVideosResponse adds a handler for /helix/videos endpoint
func (m *MockTwitchServer) MockVideosResponse(videos []map[string]string, cursor string) {
	m.MockData("/videos", videos, cursor)
}

// MockStreamsResponse adds a handler for /helix/streams endpoint
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]any) {
	if streams == nil {
		streams = []map[string]any{}
	}
	m.MockData("/streams", streams, "")
}

// MockError makes a Helix resource fail with status. retryAfter, when set,
// is sent as Ratelimit-Reset.
func (m *MockTwitchServer) MockError(resource string, status int, retryAfter int64) {
	m.Handle("/helix"+resource, func(w http.ResponseWriter, r *http.Request) {
		if retryAfter > 0 {
			w.Header().Set("Ratelimit-Reset", strconv.FormatInt(retryAfter, 10))
		}
		writeJSON(w, status, map[string]any{"error": http.StatusText(status), "status": status, "message": "mock failure"})
	})
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}

// MockOAuthTokenError makes the token endpoint reject exchanges.
func (m *MockTwitchServer) MockOAuthTokenError(status int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{"status": status, "message": "invalid client"})
	})
}
