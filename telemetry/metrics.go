// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	HelixRequests          *prometheus.CounterVec // labels: resource, status
	TokenExchanges         *prometheus.CounterVec // labels: outcome
	ChatMessagesReceived   prometheus.Counter
	ChatMessagesSelf       prometheus.Counter
	ChatSubscriberPanics   prometheus.Counter
	ChatConnectAttempts    *prometheus.CounterVec // labels: outcome
	StreamPollFailures     prometheus.Counter
	BackgroundTokenRenewal *prometheus.CounterVec // labels: outcome

	// Histograms (seconds)
	HelixRequestDuration *prometheus.HistogramVec // labels: resource
	StreamPollDuration   prometheus.Histogram

	// Gauges
	ChatStateGauge       prometheus.Gauge // 0=disconnected,1=connecting,2=connected
	ChatSubscribersGauge prometheus.Gauge
	StreamLiveGauge      prometheus.Gauge // 1=live,0=offline
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		HelixRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamdash_helix_requests_total", Help: "Helix requests by resource and HTTP status"}, []string{"resource", "status"})
		TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamdash_token_exchanges_total", Help: "Client-credentials token exchanges by outcome"}, []string{"outcome"})
		ChatMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "streamdash_chat_messages_received_total", Help: "Chat messages parsed and dispatched"})
		ChatMessagesSelf = promauto.NewCounter(prometheus.CounterOpts{Name: "streamdash_chat_messages_self_total", Help: "Chat messages dropped because this client sent them"})
		ChatSubscriberPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "streamdash_chat_subscriber_panics_total", Help: "Chat subscriber callbacks that panicked"})
		ChatConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamdash_chat_connects_total", Help: "Chat connect attempts by outcome"}, []string{"outcome"})
		StreamPollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "streamdash_stream_poll_failures_total", Help: "Stream status polls that failed"})
		BackgroundTokenRenewal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamdash_token_renewals_total", Help: "Proactive background token renewals by outcome"}, []string{"outcome"})
		HelixRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "streamdash_helix_request_duration_seconds", Help: "Helix request duration seconds", Buckets: prometheus.DefBuckets}, []string{"resource"})
		StreamPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamdash_stream_poll_duration_seconds", Help: "Stream status poll duration seconds", Buckets: prometheus.DefBuckets})
		ChatStateGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamdash_chat_state", Help: "Chat connection state 0=disconnected 1=connecting 2=connected"})
		ChatSubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamdash_chat_subscribers", Help: "Current number of chat subscribers"})
		StreamLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamdash_stream_live", Help: "Monitored channel live=1 offline=0"})
	})
}

// ObserveHelixRequest counts one Helix request and records its duration.
func ObserveHelixRequest(resource, status string, d time.Duration) {
	if HelixRequests != nil {
		HelixRequests.WithLabelValues(resource, status).Inc()
	}
	if HelixRequestDuration != nil {
		HelixRequestDuration.WithLabelValues(resource).Observe(d.Seconds())
	}
}

// RecordTokenExchange counts a token exchange ("success" or "failure").
func RecordTokenExchange(outcome string) {
	if TokenExchanges != nil {
		TokenExchanges.WithLabelValues(outcome).Inc()
	}
}

// RecordTokenRenewal counts a background renewal attempt.
func RecordTokenRenewal(outcome string) {
	if BackgroundTokenRenewal != nil {
		BackgroundTokenRenewal.WithLabelValues(outcome).Inc()
	}
}

// RecordChatConnect counts a chat connect attempt.
func RecordChatConnect(outcome string) {
	if ChatConnectAttempts != nil {
		ChatConnectAttempts.WithLabelValues(outcome).Inc()
	}
}

// IncCounter increments c if it has been registered.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetGauge sets g to v if it has been registered.
func SetGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

// SetStreamLive sets the live gauge to 1 if live else 0.
func SetStreamLive(live bool) {
	if live {
		SetGauge(StreamLiveGauge, 1)
	} else {
		SetGauge(StreamLiveGauge, 0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
