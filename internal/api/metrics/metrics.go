// Package metrics defines and registers the custom Prometheus metrics of the
// agent gateway. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto; Recorder adapts them to the core services.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agent_gateway"

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts password verifications.
// Labels:
//   - channel: "api" (identity token) or "extension" (session token)
//   - result: "ok" or "rejected"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by channel and result.",
	},
	[]string{"channel", "result"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsIssuedTotal counts extension sessions handed out.
var SessionsIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_issued_total",
		Help:      "Total number of extension sessions issued.",
	},
)

// SessionsActive is the number of sessions not yet expired, refreshed by the sweeper.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Current number of active extension sessions.",
	},
)

// SessionsExpiredTotal counts session expirations.
// Label:
//   - reason: "idle" or "deactivated"
var SessionsExpiredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_expired_total",
		Help:      "Total number of extension sessions expired, by reason.",
	},
	[]string{"reason"},
)

// ── Provider metrics ──────────────────────────────────────────────────────────

// ProviderCallsTotal counts upstream calls.
// Labels:
//   - provider: registry id (e.g. "openai")
//   - success: "true" or "false"
var ProviderCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "Total number of provider calls, by provider and outcome.",
	},
	[]string{"provider", "success"},
)

// ProviderCallDuration measures upstream latency including failures.
var ProviderCallDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of provider calls.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
	},
	[]string{"provider"},
)

// ── Archive metrics ───────────────────────────────────────────────────────────

// ArchiveQueueDepth is the number of interaction records waiting to be archived.
var ArchiveQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "archive_queue_depth",
		Help:      "Current number of interaction records pending in the archive queue.",
	},
)

// ArchiveDroppedTotal counts records that never reached the archive queue.
var ArchiveDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_dropped_total",
		Help:      "Total number of interaction records not archived because the queue was full or stopped.",
	},
)

// Recorder implements ports.Metrics and queue.DepthRecorder on the metrics above.
type Recorder struct{}

func (Recorder) LoginAttempt(channel string, ok bool) {
	result := "rejected"
	if ok {
		result = "ok"
	}
	LoginAttemptsTotal.WithLabelValues(channel, result).Inc()
}

func (Recorder) SessionIssued() { SessionsIssuedTotal.Inc() }

func (Recorder) SessionsActive(n int) { SessionsActive.Set(float64(n)) }

func (Recorder) SessionsExpired(reason string, n int) {
	if n > 0 {
		SessionsExpiredTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func (Recorder) ProviderCall(providerID string, success bool, elapsed time.Duration) {
	ProviderCallsTotal.WithLabelValues(providerID, strconv.FormatBool(success)).Inc()
	ProviderCallDuration.WithLabelValues(providerID).Observe(elapsed.Seconds())
}

func (Recorder) ArchiveQueueDepth(n int) { ArchiveQueueDepth.Set(float64(n)) }

func (Recorder) ArchiveDropped() { ArchiveDroppedTotal.Inc() }
