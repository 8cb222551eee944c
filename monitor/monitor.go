// Package monitor polls the live status of a channel on a fixed interval.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/streamdash/backend/telemetry"
	"github.com/onnwee/streamdash/backend/twitchapi"
)

// StreamGetter is the part of twitchapi.HelixClient the monitor needs.
type StreamGetter interface {
	GetStream(ctx context.Context, login string) (*twitchapi.Stream, error)
}

// Status is the result of the latest poll.
type Status struct {
	Channel   string            `json:"channel"`
	Live      bool              `json:"live"`
	Stream    *twitchapi.Stream `json:"stream,omitempty"`
	CheckedAt time.Time         `json:"checkedAt"`
	LiveSince *time.Time        `json:"liveSince,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// StreamMonitor keeps the latest Status for one channel.
type StreamMonitor struct {
	helix    StreamGetter
	channel  string
	interval time.Duration
	// OnChange, when set, is called after a poll flips the live state.
	OnChange func(Status)

	mu     sync.RWMutex
	status Status
	polled bool
}

// New returns a monitor for channel (a login). interval defaults to 30s.
func New(helix StreamGetter, channel string, interval time.Duration) *StreamMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StreamMonitor{helix: helix, channel: channel, interval: interval, status: Status{Channel: channel}}
}

// Status returns the latest poll result.
func (m *StreamMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run polls immediately and then every interval until ctx is done.
func (m *StreamMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	slog.Info("stream monitor: started poller", slog.String("channel", m.channel), slog.Duration("interval", m.interval))
	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll performs one status check. A failed check keeps the previous live
// state and records the error.
func (m *StreamMonitor) Poll(ctx context.Context) Status {
	var (
		stream *twitchapi.Stream
		err    error
	)
	telemetry.TimeFunc(telemetry.StreamPollDuration, func() {
		stream, err = m.helix.GetStream(ctx, m.channel)
	})
	now := time.Now().UTC()

	m.mu.Lock()
	prev := m.status
	next := prev
	next.CheckedAt = now
	if err != nil {
		next.Error = err.Error()
	} else {
		next.Error = ""
		next.Stream = stream
		next.Live = stream != nil
		switch {
		case stream != nil && !stream.StartedAt.IsZero():
			started := stream.StartedAt
			next.LiveSince = &started
		case stream == nil:
			next.LiveSince = nil
		}
	}
	changed := m.polled && err == nil && next.Live != prev.Live
	m.status = next
	m.polled = true
	m.mu.Unlock()

	if err != nil {
		telemetry.IncCounter(telemetry.StreamPollFailures)
		slog.Debug("stream monitor: streams req", slog.String("channel", m.channel), slog.Any("err", err))
		return next
	}
	telemetry.SetStreamLive(next.Live)
	if changed {
		if next.Live {
			slog.Info("stream monitor: channel went live", slog.String("channel", m.channel), slog.String("title", stream.Title))
		} else {
			slog.Info("stream monitor: channel went offline", slog.String("channel", m.channel))
		}
		if m.OnChange != nil {
			m.OnChange(next)
		}
	}
	return next
}
