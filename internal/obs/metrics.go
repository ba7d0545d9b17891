package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authentication and authorization metrics.
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Tokens issued by kind.",
		},
		[]string{"kind"},
	)

	tokenVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "Token verifications by outcome.",
		},
		[]string{"result"},
	)

	throttled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_throttled_total",
		Help: "Requests refused by the rate limiter.",
	})

	hashDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_password_hash_seconds",
		Help:    "Password hash derivation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Init registers the module's metrics in the default registry.
func Init() {
	prometheus.MustRegister(loginAttempts, tokensIssued, tokenVerifications, throttled, hashDuration)
}

// Handler exposes the Prometheus scrape endpoint for embedding callers.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome (succeeded, failed, throttled, error).
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveTokenIssued records issuance of a token of the given kind.
func ObserveTokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// ObserveTokenVerification records a verification outcome (ok, invalid_signature, expired, revoked).
func ObserveTokenVerification(result string) {
	tokenVerifications.WithLabelValues(result).Inc()
}

// ObserveThrottled counts a rate-limiter refusal.
func ObserveThrottled() {
	throttled.Inc()
}

// ObserveHashDuration records how long a password hash derivation took.
func ObserveHashDuration(d time.Duration) {
	hashDuration.Observe(d.Seconds())
}
