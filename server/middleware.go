package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/streamdash/backend/config"
)

// controlAuthConfig guards the chat control endpoints.
type controlAuthConfig struct {
	username string
	password string
	token    string
	enabled  bool
}

func loadControlAuthConfig() *controlAuthConfig {
	cfg := &controlAuthConfig{
		username: os.Getenv("ADMIN_USERNAME"),
		password: os.Getenv("ADMIN_PASSWORD"),
		token:    os.Getenv("ADMIN_TOKEN"),
	}
	cfg.enabled = (cfg.username != "" && cfg.password != "") || cfg.token != ""
	if !cfg.enabled {
		slog.Warn("control auth not configured: chat connect/disconnect are UNPROTECTED. Set ADMIN_USERNAME+ADMIN_PASSWORD or ADMIN_TOKEN for production")
	}
	return cfg
}

func (c *controlAuthConfig) allowed(r *http.Request) bool {
	if c.token != "" {
		if tok := r.Header.Get("X-Admin-Token"); tok != "" && subtle.ConstantTimeCompare([]byte(tok), []byte(c.token)) == 1 {
			return true
		}
	}
	if c.username != "" && c.password != "" {
		if u, p, ok := r.BasicAuth(); ok {
			userOK := subtle.ConstantTimeCompare([]byte(u), []byte(c.username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(p), []byte(c.password)) == 1
			return userOK && passOK
		}
	}
	return false
}

// requireControlAuth accepts X-Admin-Token or Basic auth. With nothing
// configured every request passes (dev mode).
func requireControlAuth(next http.Handler, cfg *controlAuthConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.enabled || cfg.allowed(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="streamdash control"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		reqLogger(r).Warn("control auth failed", slog.String("path", r.URL.Path), slog.String("remote_addr", r.RemoteAddr))
	})
}

type clientLimiterConfig struct {
	enabled bool
	perMin  int // sustained requests per minute per client
	burst   int
}

func loadClientLimiterConfig() *clientLimiterConfig {
	cfg := &clientLimiterConfig{
		enabled: os.Getenv("RATE_LIMIT_ENABLED") != "0",
		perMin:  config.IntOr("RATE_LIMIT_REQUESTS_PER_MIN", 10),
		burst:   config.IntOr("RATE_LIMIT_BURST", 5),
	}
	if cfg.perMin <= 0 {
		cfg.perMin = 10
	}
	if cfg.burst <= 0 {
		cfg.burst = 1
	}
	return cfg
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	cfg     *clientLimiterConfig
	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(ctx context.Context, cfg *clientLimiterConfig) *clientLimiter {
	cl := &clientLimiter{cfg: cfg, clients: make(map[string]*clientBucket)}
	go cl.sweepLoop(ctx)
	return cl
}

func (cl *clientLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cl.sweep(now, 3*time.Minute)
		}
	}
}

func (cl *clientLimiter) sweep(now time.Time, idle time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for ip, b := range cl.clients {
		if now.Sub(b.lastSeen) > idle {
			delete(cl.clients, ip)
		}
	}
}

func (cl *clientLimiter) allow(ip string) bool {
	if !cl.cfg.enabled {
		return true
	}
	cl.mu.Lock()
	b, ok := cl.clients[ip]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cl.cfg.perMin)), cl.cfg.burst)}
		cl.clients[ip] = b
	}
	b.lastSeen = time.Now()
	cl.mu.Unlock()
	return b.lim.Allow()
}

// clientIP prefers the first X-Forwarded-For hop and strips any port.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		addr, _, _ = strings.Cut(fwd, ",")
		addr = strings.TrimSpace(addr)
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func rateLimit(next http.Handler, cl *clientLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !cl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(max(1, 60/cl.cfg.perMin)))
			http.Error(w, "Too Many Requests - rate limit exceeded", http.StatusTooManyRequests)
			reqLogger(r).Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type corsConfig struct {
	allowedOrigins []string
	permissive     bool // dev: allow all
}

// loadCORSConfig is permissive unless ENV names a non-dev environment;
// CORS_PERMISSIVE overrides either way.
func loadCORSConfig() *corsConfig {
	env := strings.ToLower(os.Getenv("ENV"))
	cfg := &corsConfig{permissive: env == "" || env == "dev" || env == "development"}
	if v := os.Getenv("CORS_PERMISSIVE"); v != "" {
		cfg.permissive = v == "1" || v == "true"
	}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.allowedOrigins = append(cfg.allowedOrigins, o)
		}
	}
	if !cfg.permissive && len(cfg.allowedOrigins) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return cfg
}

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-Admin-Token, X-Correlation-ID, Last-Event-ID"
)

func withCORS(next http.Handler, cfg *corsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case cfg.permissive:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
		case origin != "" && originAllowed(origin, cfg.allowedOrigins):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed supports exact origins and "*.example.com" wildcards, which
// also match the bare domain.
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if origin == a {
			return true
		}
		if domain, ok := strings.CutPrefix(a, "*."); ok {
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain || origin == "http://"+domain {
				return true
			}
		}
	}
	return false
}
