// Package server exposes the dashboard HTTP API: Helix lookups, the live chat
// window (snapshot and SSE), stream status, health and metrics. Every request
// gets a correlation id and a tracing span; chat control endpoints sit behind
// token/basic auth and a per-client rate limit.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/streamdash/backend/telemetry"
)

// NewMux returns the HTTP handler with all routes. ctx bounds background
// goroutines owned by the handler (rate limiter sweeps, chat connects).
func NewMux(ctx context.Context, deps Deps) http.Handler {
	h := NewHandlers(ctx, deps)
	authCfg := loadControlAuthConfig()
	limiter := newClientLimiter(ctx, loadClientLimiterConfig())
	control := func(fn http.HandlerFunc) http.Handler {
		return requireControlAuth(rateLimit(fn, limiter), authCfg)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)
	mux.HandleFunc("GET /config", h.HandleConfig)
	mux.HandleFunc("GET /status", h.HandleStatus)

	mux.HandleFunc("GET /auth/twitch/start", h.HandleTwitchOAuthStart)
	mux.HandleFunc("GET /auth/twitch/callback", h.HandleTwitchOAuthCallback)

	mux.HandleFunc("GET /api/users/{login}", h.HandleUser)
	mux.HandleFunc("GET /api/streams/{login}", h.HandleStream)
	mux.HandleFunc("GET /api/games/{id}", h.HandleGame)
	mux.HandleFunc("GET /api/channels/{id}", h.HandleChannel)
	mux.HandleFunc("GET /api/videos", h.HandleVideos)
	mux.HandleFunc("GET /api/clips", h.HandleClips)
	mux.HandleFunc("GET /api/emotes", h.HandleEmotes)
	mux.HandleFunc("GET /api/badges", h.HandleBadges)
	mux.HandleFunc("GET /api/followers", h.HandleFollowers)
	mux.HandleFunc("GET /api/rewards", h.HandleRewards)
	mux.HandleFunc("GET /api/redemptions", h.HandleRedemptions)

	mux.HandleFunc("GET /api/chat/messages", h.HandleChatMessages)
	mux.HandleFunc("GET /api/chat/stream", h.HandleChatStream)
	mux.Handle("POST /api/chat/connect", control(h.HandleChatConnect))
	mux.Handle("POST /api/chat/disconnect", control(h.HandleChatDisconnect))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()
		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(telemetry.HTTPAttrs(r.Method, r.URL.Path, rec.statusCode)...)
		if rec.statusCode >= 500 {
			telemetry.RecordError(span, fmt.Errorf("HTTP %d", rec.statusCode))
		} else {
			telemetry.SetSpanSuccess(span)
		}
	})
	return withCORS(handler, loadCORSConfig())
}

func reqLogger(r *http.Request) *slog.Logger {
	return telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     NewMux(ctx, deps),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: /api/chat/stream holds the response open. Handlers
		// bound their own upstream calls via the request context.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
