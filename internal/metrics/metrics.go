// Package metrics exposes Prometheus counters/histograms for the
// trustchain server side of sdk-core: block traffic, verification
// outcomes, session state transitions, and the authenticate() challenge
// handshake.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BlocksPushedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdkcore_blocks_pushed_total",
			Help: "Total number of blocks accepted onto a trustchain",
		},
		[]string{"nature", "result"}, // result: accepted, rejected
	)

	BlocksPulledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdkcore_blocks_pulled_total",
			Help: "Total number of blocks returned by a pull",
		},
		[]string{"trustchain_id"},
	)

	VerificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdkcore_verification_failures_total",
			Help: "Total number of blocks that failed verification, by nature and error kind",
		},
		[]string{"nature", "error_kind"},
	)

	LedgerReplayLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdkcore_ledger_replay_latency_seconds",
			Help:    "Time to replay a batch of pulled blocks into the ledger",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	SessionStateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdkcore_session_state_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"to_state"},
	)

	AuthChallengeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdkcore_auth_challenge_attempts_total",
			Help: "Total number of authenticate() challenge-response attempts",
		},
		[]string{"result"}, // success, bad_signature, unknown_nonce
	)

	TokenBlacklistGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdkcore_token_blacklist_current_count",
			Help: "Current number of blacklisted access tokens",
		},
	)

	DeviceRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdkcore_device_revocations_total",
			Help: "Total number of devices revoked",
		},
	)

	GroupFanOutLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdkcore_group_fanout_latency_seconds",
			Help:    "Time to seal and emit a group's key-publish blocks to all members",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdkcore_http_requests_total",
			Help: "Total number of HTTP requests served by the demo trustchain server",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdkcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware wraps an HTTP handler with request count/latency metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBlockPushed records a block push outcome, keyed by its action
// nature and whether the verifier accepted it.
func RecordBlockPushed(nature string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	BlocksPushedTotal.WithLabelValues(nature, result).Inc()
}

// RecordVerificationFailure records a verifier rejection, keyed by action
// nature and sdkerr.Kind string.
func RecordVerificationFailure(nature, errorKind string) {
	VerificationFailuresTotal.WithLabelValues(nature, errorKind).Inc()
}

// RecordSessionStateTransition records a Session.State() transition.
func RecordSessionStateTransition(toState string) {
	SessionStateTransitionsTotal.WithLabelValues(toState).Inc()
}

// RecordAuthChallengeAttempt records an authenticate() challenge-response
// outcome.
func RecordAuthChallengeAttempt(result string) {
	AuthChallengeAttemptsTotal.WithLabelValues(result).Inc()
}

// UpdateTokenBlacklistCount sets the current blacklisted-token gauge.
func UpdateTokenBlacklistCount(count int) {
	TokenBlacklistGauge.Set(float64(count))
}

// RecordDeviceRevocation records a device revocation.
func RecordDeviceRevocation() {
	DeviceRevocationsTotal.Inc()
}
