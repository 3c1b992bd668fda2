package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// QuotaDenials counts growth requests rejected by the quota gate.
	QuotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_quota_denials_total",
		Help: "Count of growth operations denied by tier limits",
	}, []string{"kind"})

	membershipMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_membership_mutations_total",
		Help: "Count of membership mutations by operation and result",
	}, []string{"operation", "result"})

	inviteTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_invite_transitions_total",
		Help: "Count of invite lifecycle transitions",
	}, []string{"transition"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_side_effect_failures_total",
		Help: "Best-effort side effects that failed and were logged",
	}, []string{"effect"})

	orgsOverQuota = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roster_organizations_over_quota",
		Help: "Organizations whose usage exceeds their tier at the last reconciliation",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveMutation records the outcome of a membership mutation.
func ObserveMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	membershipMutations.WithLabelValues(operation, result).Inc()
}

func ObserveInvite(transition string) {
	inviteTransitions.WithLabelValues(transition).Inc()
}

// ObserveSideEffectFailure counts a logged failure of email, identity
// deletion or audit append.
func ObserveSideEffectFailure(effect string) {
	sideEffectFailures.WithLabelValues(effect).Inc()
}

func SetOrgsOverQuota(count int) {
	if count < 0 {
		count = 0
	}
	orgsOverQuota.Set(float64(count))
}
