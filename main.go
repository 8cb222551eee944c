// Command backend is the streamdash API server.
// It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Builds the Helix client on an app access token (client credentials) and,
//     when configured, a broadcaster user token for channel-point reads.
//   - Keeps the app token warm, polls the default channel's live status, and
//     joins its chat, buffering the newest messages for the dashboard.
//   - Serves the dashboard HTTP API.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/onnwee/streamdash/backend/chat"
	"github.com/onnwee/streamdash/backend/config"
	"github.com/onnwee/streamdash/backend/monitor"
	"github.com/onnwee/streamdash/backend/oauth"
	"github.com/onnwee/streamdash/backend/server"
	"github.com/onnwee/streamdash/backend/telemetry"
	"github.com/onnwee/streamdash/backend/twitchapi"
)

const (
	appTokenCheckInterval = time.Minute
	appTokenRenewWindow   = 10 * time.Minute
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("streamdash", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()
	if telemetry.IsTracingEnabled() {
		slog.Info("tracing enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{Config: cfg}
	httpClient := &http.Client{Timeout: 10 * time.Second}

	if err := cfg.ValidateHelixReady(); err != nil {
		slog.Warn("helix disabled", slog.Any("err", err))
	} else {
		app := twitchapi.NewTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, httpClient)
		app.Skew = cfg.TokenExpirySkew
		helix := twitchapi.NewHelixClient(cfg.TwitchClientID, app, httpClient)
		if cfg.HelixRateLimit > 0 {
			helix.Limiter = rate.NewLimiter(rate.Limit(cfg.HelixRateLimit), cfg.HelixRateBurst)
		}
		if cfg.UserOAuthEnabled() || cfg.TwitchUserRefreshToken != "" {
			oc := twitchapi.OAuthConfig(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, cfg.TwitchScopes)
			user := twitchapi.NewUserTokenSource(ctx, oc, cfg.TwitchUserRefreshToken)
			helix.UserTokenSource = user
			deps.UserToken = user
		}
		deps.AppToken = app
		deps.Helix = helix

		oauth.StartRefresher(ctx, "twitch_app", appTokenCheckInterval, appTokenRenewWindow, app.ExpiresIn,
			func(rctx context.Context) error {
				_, err := app.Refresh(rctx)
				return err
			})
	}

	deps.Chat = chat.NewClient(chat.Options{Username: cfg.TwitchBotUsername, OAuthToken: cfg.TwitchOAuthToken})
	deps.Window = chat.NewWindow(cfg.MaxChatMessages)
	defer deps.Chat.Disconnect()

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat auto-connect disabled", slog.Any("err", err))
	} else {
		var running atomic.Bool
		follow := func() {
			if !running.CompareAndSwap(false, true) {
				return
			}
			defer running.Store(false)
			autoConnect(ctx, deps.Chat, deps.Window, cfg.TwitchChannel)
		}
		go follow()
		if deps.Helix != nil {
			deps.Monitor = monitor.New(deps.Helix, cfg.TwitchChannel, cfg.RefreshInterval)
			deps.Monitor.OnChange = func(s monitor.Status) {
				// A dropped chat connection is retried when the channel goes live.
				if s.Live && deps.Chat.State() == chat.Disconnected {
					go follow()
				}
			}
			go deps.Monitor.Run(ctx)
		}
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// autoConnect joins channel, retrying with capped exponential backoff until
// it succeeds or ctx is done.
func autoConnect(ctx context.Context, c *chat.Client, w *chat.Window, channel string) {
	backoff := 2 * time.Second
	for {
		err := chat.Follow(ctx, c, w, channel)
		if err == nil {
			return
		}
		if errors.Is(err, chat.ErrInvalidChannel) || ctx.Err() != nil {
			return
		}
		slog.Warn("chat auto-connect failed, retrying", slog.String("channel", channel), slog.Duration("backoff", backoff), slog.Any("err", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Minute)
	}
}
