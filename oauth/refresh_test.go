package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/streamdash/backend/twitchapi"
)

func TestStartRefresherOutsideWindow(t *testing.T) {
	var calls int32
	refreshFunc := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := StartRefresher(ctx, "test-provider", 30*time.Millisecond, 15*time.Minute,
		func() time.Duration { return time.Hour }, refreshFunc)
	<-done

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("refresh called %d times for token valid for an hour with 15m window", n)
	}
}

func TestStartRefresherWithinWindow(t *testing.T) {
	var remaining atomic.Int64
	remaining.Store(int64(5 * time.Minute))
	var calls int32
	refreshFunc := func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("refresh ctx should carry a deadline")
		}
		atomic.AddInt32(&calls, 1)
		remaining.Store(int64(2 * time.Hour))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := StartRefresher(ctx, "test-provider", 30*time.Millisecond, 15*time.Minute,
		func() time.Duration { return time.Duration(remaining.Load()) }, refreshFunc)
	<-done

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("refresh called %d times, want exactly 1 (renewed token is outside window)", n)
	}
}

func TestStartRefresherRetriesAfterError(t *testing.T) {
	var calls int32
	refreshFunc := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("refresh failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := StartRefresher(ctx, "test-provider", 20*time.Millisecond, time.Minute,
		func() time.Duration { return 0 }, refreshFunc)
	<-done

	if n := atomic.LoadInt32(&calls); n < 2 {
		t.Errorf("refresh called %d times, want repeated attempts after failures", n)
	}
}

func TestStartRefresherCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := StartRefresher(ctx, "test-provider", time.Second, time.Minute,
		func() time.Duration { return time.Hour }, func(context.Context) error { return nil })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop after cancellation")
	}
}

func TestNextSleepBounds(t *testing.T) {
	interval := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := nextSleep(interval)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("nextSleep = %v, want within +/-20%% of %v", d, interval)
		}
	}
	if got := nextSleep(3); got != 3 {
		t.Errorf("nextSleep(3ns) = %v, want unchanged", got)
	}
}

func TestStartRefresherWarmsAppToken(t *testing.T) {
	var exchanges int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "warm", "expires_in": 3600})
	}))
	defer server.Close()

	ts := twitchapi.NewTokenSource("cid", "secret", server.Client())
	ts.TokenURL = server.URL + "/oauth2/token"

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	done := StartRefresher(ctx, "twitch_app", 20*time.Millisecond, 10*time.Minute, ts.ExpiresIn,
		func(ctx context.Context) error {
			_, err := ts.Refresh(ctx)
			return err
		})
	<-done

	if n := atomic.LoadInt32(&exchanges); n != 1 {
		t.Errorf("exchanges = %d, want 1 (cold cache renewed once)", n)
	}
	tok, err := ts.Get(context.Background())
	if err != nil || !strings.EqualFold(tok, "warm") {
		t.Errorf("Get() = %q, %v", tok, err)
	}
	if n := atomic.LoadInt32(&exchanges); n != 1 {
		t.Errorf("Get() after warm-up triggered another exchange")
	}
}
