// Package oauth schedules proactive renewal of cached access tokens so request
// paths rarely have to wait for an exchange. Checks are jittered and a refresh
// runs only when the remaining lifetime falls within a configured window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/streamdash/backend/telemetry"
)

// ExpiryFunc reports how long the cached token stays usable. Zero or negative
// means nothing usable is cached.
type ExpiryFunc func() time.Duration

// RefreshFunc performs the provider-specific renewal.
type RefreshFunc func(ctx context.Context) error

// StartRefresher launches a goroutine that periodically checks a token's
// remaining lifetime and refreshes it.
// provider: name used in logs and metrics.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
// It returns a channel closed when the goroutine exits (after ctx is done).
func StartRefresher(ctx context.Context, provider string, interval, window time.Duration, expiry ExpiryFunc, fn RefreshFunc) <-chan struct{} {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	done := make(chan struct{})
	// Randomize initial delay so several sources do not renew in lockstep.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// A token that is missing or about to lapse is renewed before sleeping.
			if remaining := expiry(); remaining <= window {
				refreshOnce(ctx, provider, remaining, fn)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep(interval)):
			}
		}
	}()
	return done
}

// nextSleep applies +/-20% jitter to interval, never going below interval/2.
func nextSleep(interval time.Duration) time.Duration {
	jitterRange := int64(interval / 5)
	if jitterRange <= 0 {
		return interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
	next := interval + jitter
	if next < interval/2 {
		next = interval / 2
	}
	return next
}

func refreshOnce(ctx context.Context, provider string, remaining time.Duration, fn RefreshFunc) {
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := fn(ctx2); err != nil {
		telemetry.RecordTokenRenewal("failure")
		slog.Warn("token refresh failed", slog.String("provider", provider), slog.Duration("remaining", remaining), slog.Any("err", err))
		return
	}
	telemetry.RecordTokenRenewal("success")
	slog.Info("token refreshed", slog.String("provider", provider))
}
