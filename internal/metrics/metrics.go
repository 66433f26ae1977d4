package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cafa"

var (
	// PurchasesTotal counts purchase state changes by resulting status
	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchases by resulting status",
		},
		[]string{"status"},
	)

	// SettlementsTotal counts settlement attempts by source (verify, webhook) and outcome
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Payment settlements by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// WebhooksTotal counts received webhooks by kind and outcome
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Provider webhooks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// WithdrawalsTotal counts withdrawal transitions by resulting status
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Withdrawal requests by resulting status",
		},
		[]string{"status"},
	)

	// LatePayouts counts transfers reported successful after their request had failed
	LatePayouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_late_payouts_total",
			Help:      "Transfers that succeeded after their withdrawal failed, by ledger outcome",
		},
		[]string{"outcome"},
	)

	// VerificationAttempts counts account resolution attempts
	VerificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_verification_attempts_total",
			Help:      "Payment profile verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RevenueReleased counts ledger entries moved from pending to available
	RevenueReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_released_total",
			Help:      "Revenue entries released after the holding period",
		},
	)

	// JobRuns counts background job runs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	// NotificationsTotal counts notification deliveries
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// GatewayLatency tracks provider call latency
	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment provider request latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "op", "outcome"},
	)
)

// ObserveGateway records one provider call started at start
func ObserveGateway(provider, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	GatewayLatency.WithLabelValues(provider, op, outcome).Observe(time.Since(start).Seconds())
}

// Outcome maps an error to a label value
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
